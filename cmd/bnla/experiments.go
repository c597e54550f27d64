package main

import (
	"fmt"

	"bnla/adapters/export"
	"bnla/app"
	"bnla/domain/model"
	"bnla/internal/crossval"
	"bnla/internal/errors"
	"bnla/ports"

	"github.com/spf13/cobra"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [experiment...]",
		Short: "Fit experiments from the experiments file",
		Long: `Fit the named experiments (all of them when none are named) with bounded
parallelism, then print their posterior summaries and fit metrics.

Example: bnla run tp mav --save --save-draws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			specs, err := e.specs(args)
			if err != nil {
				return err
			}
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			reg, err := svc.RunAll(ctx, specs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, res := range reg.Results() {
				printResult(out, res)
				if g.save {
					if _, err := svc.Save(ctx, res, ports.KindFit); err != nil {
						return err
					}
				}
			}
			if g.save {
				green.Fprintf(out, "\nsaved %d experiments under run %s\n", reg.Len(), svc.RunID())
			}
			return nil
		},
	}
}

func newCrossValCmd(g *globalFlags) *cobra.Command {
	var by string
	var k int

	cmd := &cobra.Command{
		Use:   "crossval <experiment>",
		Short: "Cross-validate an experiment over column or lake folds",
		Long: `Refit an experiment on the training rows of every fold and score its
posterior-mean predictions on the held-out rows. Folds come either from the
distinct values of a column (--by year) or from hashing lakes into k groups (--k 5).

Example: bnla crossval tp --by year`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (by == "") == (k == 0) {
				return errors.InvalidInput("exactly one of --by or --k is required")
			}
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			spec, err := e.spec(args[0])
			if err != nil {
				return err
			}
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			var folds []crossval.Fold
			if by != "" {
				folds, err = crossval.ByColumn(svc.Dataset(), by)
			} else {
				folds, err = crossval.ByLake(svc.Dataset(), k)
			}
			if err != nil {
				return err
			}

			cv, err := svc.CrossValidate(ctx, spec, folds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			bold.Fprintf(out, "\n%s: %d folds\n", spec.Name, len(cv.Folds))
			for _, f := range cv.Folds {
				fmt.Fprintf(out, "  %s\n", f.Fold)
				printEvaluation(out, "train", f.Train)
				printEvaluation(out, "held-out", f.HeldOut)
			}
			printEvaluation(out, "pooled", cv.Pooled)
			if g.save {
				return svc.SaveCrossValidation(ctx, cv)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Column whose distinct values define the folds")
	cmd.Flags().IntVar(&k, "k", 0, "Number of lake-hash folds")
	return cmd
}

func newSelectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select <experiment>",
		Short: "Backward-select the covariates of an experiment",
		Long: `Repeatedly refit the experiment, dropping the weakest covariate whose 95%
credible interval includes zero, until every remaining covariate is credible.

Example: bnla select tp_covariates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			spec, err := e.spec(args[0])
			if err != nil {
				return err
			}
			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			sel, err := svc.SelectBackward(ctx, spec)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, step := range sel.Outcome.Steps {
				printResult(out, sel.Fits[i])
				if step.Dropped != "" {
					yellow.Fprintf(out, "  dropped %s\n", step.Dropped)
				}
				if g.save {
					if _, err := svc.Save(ctx, sel.Fits[i], ports.KindSelection); err != nil {
						return err
					}
				}
			}
			green.Fprintf(out, "\nkept covariates: %v\n", sel.Outcome.Kept())
			return nil
		},
	}
}

func newLimitationCmd(g *globalFlags) *cobra.Command {
	var calibrated, npRatio string
	var draws int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "limitation",
		Short: "Estimate per-lake probabilities of phosphorus limitation",
		Long: `Fit a calibrated limiting-nutrient experiment and an N:P ratio experiment,
then compare each lake's critical-ratio draws with its N:P draws. Results are
written to n_p_limitation.csv in the output directory.

When --np names no experiment in the file, the standard log(tn/tp) model with a
monitored random lake intercept is used.

Example: bnla limitation --calibrated mav --draws 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			all, err := e.specs(nil)
			if err != nil {
				return err
			}
			cal, err := e.spec(calibrated)
			if err != nil {
				return err
			}
			np := app.NPRatioSpec(npRatio)
			for _, s := range all {
				if s.Name == npRatio {
					np = s
				}
			}
			if draws <= 0 {
				draws = e.cfg.Limitation.Draws
			}

			svc, err := e.service(ctx)
			if err != nil {
				return err
			}
			reg, err := svc.RunAll(ctx, []model.Spec{cal, np})
			if err != nil {
				return err
			}
			calRes, _ := reg.Get(cal.Name)
			npRes, _ := reg.Get(np.Name)

			results, err := svc.Limitation(ctx, app.LimitationRequest{
				Calibrated: calRes,
				NPRatio:    npRes,
				Draws:      draws,
				Seed:       seed,
			})
			if err != nil {
				return err
			}
			path, err := export.SaveLimitationCSV(e.cfg.Output.Dir, svc.Dataset(), results)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printResult(out, calRes)
			printResult(out, npRes)
			printLimitation(out, results)
			green.Fprintf(out, "\nwrote %s\n", path)

			if g.save {
				for _, res := range []*app.ExperimentResult{calRes, npRes} {
					if _, err := svc.Save(ctx, res, ports.KindLimitation); err != nil {
						return err
					}
				}
				runID, err := svc.SaveLimitation(ctx, results)
				if err != nil {
					return err
				}
				green.Fprintf(out, "saved limitation results under run %s\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&calibrated, "calibrated", "mav", "Limiting-nutrient experiment with a critical ratio")
	cmd.Flags().StringVar(&npRatio, "np", "np_ratio", "N:P ratio experiment with monitored lake intercepts")
	cmd.Flags().IntVar(&draws, "draws", 0, "Paired draws per lake (default BNLA_LIMITATION_DRAWS)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed of the draw resampling")
	return cmd
}
