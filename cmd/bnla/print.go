package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"bnla/app"
	"bnla/internal/diagnostics"
	"bnla/internal/errors"
	"bnla/internal/evaluate"
	"bnla/internal/limitation"

	"github.com/fatih/color"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printError(err error) {
	red.Fprint(os.Stderr, "error")
	if code := errors.GetCode(err); code != "UNKNOWN" {
		fmt.Fprintf(os.Stderr, " [%s]", code)
	}
	fmt.Fprintf(os.Stderr, ": %v\n", err)
}

// printResult writes the parameter table of a fit with R-hat coloured by convergence
func printResult(w io.Writer, res *app.ExperimentResult) {
	bold.Fprintf(w, "\n%s", res.Name)
	fmt.Fprintf(w, "  (%d rows, %d dropped, %s)\n", res.Evaluation.N, res.Dropped, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s %10s %8s %8s\n", "parameter", "mean", "sd", "2.5%", "50%", "97.5%", "R-hat", "ESS")
	for _, s := range res.Summaries {
		fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s %10s ", s.Name, num(s.Mean), num(s.SD), num(s.Lower), num(s.Median), num(s.Upper))
		rhat := fmt.Sprintf("%8s", num(s.Rhat))
		switch {
		case math.IsNaN(s.Rhat):
			fmt.Fprint(w, rhat)
		case diagnostics.Exceeds(s.Rhat):
			red.Fprint(w, rhat)
		default:
			green.Fprint(w, rhat)
		}
		fmt.Fprintf(w, " %8s\n", count(s.ESS))
	}
	printEvaluation(w, "fit", res.Evaluation)
	if bad := res.Unconverged(); len(bad) > 0 {
		yellow.Fprintf(w, "  warning: R-hat above %.2f for %v; increase iterations\n", diagnostics.RhatWarning, bad)
	}
	if res.DrawsPath != "" {
		fmt.Fprintf(w, "  draws: %s\n", res.DrawsPath)
	}
}

func printEvaluation(w io.Writer, label string, ev *evaluate.Evaluation) {
	cyan.Fprintf(w, "  %-8s", label)
	fmt.Fprintf(w, " n=%d  R²=%s  RMSE=%s", ev.N, num(ev.RSquared), num(ev.RMSE))
	if ev.HasCriticalRatio {
		fmt.Fprintf(w, "  P-limited=%s", num(ev.PLimitedFraction()))
	}
	fmt.Fprintln(w)
}

func printLimitation(w io.Writer, results []limitation.Result) {
	fmt.Fprintf(w, "\n  %-20s %14s %14s %12s %10s %10s\n", "lake", "P(P-limited)", "critical N:P", "mean N:P", "depth", "eutro")
	for _, r := range results {
		fmt.Fprintf(w, "  %-20s %14s %14s %12s %10s %10s\n",
			r.LakeID, num(r.Probability), num(r.MeanCriticalRatio), num(r.MeanNPRatio), num(r.Depth), num(r.Eutro))
	}
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return fmt.Sprintf("%.3f", v)
}

func count(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return fmt.Sprintf("%.0f", v)
}
