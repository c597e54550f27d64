// Package report renders stored experiments as Markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"bnla/internal/diagnostics"
	"bnla/internal/limitation"
	"bnla/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// DefaultTitle heads reports without an explicit title.
const DefaultTitle = "Nutrient limitation experiments"

// Options control report rendering.
type Options struct {
	Title       string
	GeneratedAt time.Time
	// Limitation holds per-lake results to append; empty skips the section.
	Limitation []limitation.Result
}

// Markdown renders the experiments, then each experiment's parameter table
// when its summaries are loaded.
func Markdown(records []*ports.ExperimentRecord, opts Options) []byte {
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", title)
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated %s.\n\n", opts.GeneratedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("## Experiments\n\n")
	if len(records) == 0 {
		b.WriteString("No experiments stored.\n\n")
	} else {
		b.WriteString("| name | kind | n | dropped | R² | RMSE | held-out R² | held-out RMSE | P-limited | max R-hat |\n")
		b.WriteString("|---|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, r := range records {
			fmt.Fprintf(&b, "| %s | %s | %d | %d | %s | %s | %s | %s | %s | %s |\n",
				escape(r.Name), r.Kind, r.N, r.Dropped,
				ptr(r.RSquared), ptr(r.RMSE), ptr(r.HeldOutRSquared), ptr(r.HeldOutRMSE),
				ptr(r.PLimitedFraction), ptr(r.MaxRhat))
		}
		b.WriteString("\n")
	}

	for _, r := range records {
		if len(r.Summaries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", escape(r.Name))
		fmt.Fprintf(&b, "Nutrient term `%s`", r.Spec.Nutrient.Kind)
		if r.Spec.RandomIntercept {
			b.WriteString(", random lake intercept")
		}
		if r.Spec.SlopeBy != "" {
			fmt.Fprintf(&b, ", slopes by `%s`", r.Spec.SlopeBy)
		}
		if len(r.Spec.Covariates) > 0 {
			names := make([]string, len(r.Spec.Covariates))
			for i, c := range r.Spec.Covariates {
				names[i] = "`" + c.Name + "`"
			}
			fmt.Fprintf(&b, ", covariates %s", strings.Join(names, ", "))
		}
		b.WriteString(".\n\n")

		b.WriteString("| parameter | mean | sd | 2.5% | 50% | 97.5% | R-hat | ESS |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
		var unconverged []string
		for _, s := range r.Summaries {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				escape(s.Name), num(s.Mean), num(s.SD), num(s.Lower), num(s.Median), num(s.Upper), num(s.Rhat), count(s.ESS))
			if diagnostics.Exceeds(s.Rhat) {
				unconverged = append(unconverged, s.Name)
			}
		}
		b.WriteString("\n")
		if len(unconverged) > 0 {
			fmt.Fprintf(&b, "**Not converged** (R-hat > %.2f): %s\n\n", diagnostics.RhatWarning, strings.Join(unconverged, ", "))
		}
	}

	if len(opts.Limitation) > 0 {
		b.WriteString("## Nutrient limitation\n\n")
		b.WriteString("| lake | P(phosphorus limited) | mean critical ratio | mean TN:TP | depth | eutro |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|\n")
		for _, l := range opts.Limitation {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				escape(l.LakeID), num(l.Probability), num(l.MeanCriticalRatio), num(l.MeanNPRatio), num(l.Depth), num(l.Eutro))
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

// HTML renders Markdown as a complete HTML page.
func HTML(md []byte, title string) []byte {
	if title == "" {
		title = DefaultTitle
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
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

func ptr(v *float64) string {
	if v == nil {
		return "NA"
	}
	return num(*v)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
