package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bnla/adapters/db"
	"bnla/adapters/db/migrations"
	"bnla/internal/errors"
	"bnla/internal/report"
	"bnla/internal/testkit"
	"bnla/ports"
	"bnla/ui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|status]",
		Short: "Apply or inspect results database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			conn, err := db.Open(ctx, e.cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
			m := migrations.NewMigrator(conn, e.logger)
			out := cmd.OutOrStdout()

			switch action {
			case "up":
				done, err := m.Up(ctx)
				if err != nil {
					return err
				}
				green.Fprintf(out, "applied %d migrations\n", len(done))
				return nil
			case "status":
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				applied := 0
				for _, s := range status {
					if s.Applied {
						applied++
						green.Fprintf(out, "  %s_%s: applied\n", s.Version, s.Name)
					} else {
						yellow.Fprintf(out, "  %s_%s: pending\n", s.Version, s.Name)
					}
				}
				fmt.Fprintf(out, "%d/%d migrations applied\n", applied, len(status))
				return nil
			default:
				return errors.InvalidInput("unknown migrate action " + action)
			}
		},
	}
	return cmd
}

func newReportCmd(g *globalFlags) *cobra.Command {
	var outPath, runID, title string
	var limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render stored experiments as Markdown or HTML",
		Long: `Render the newest stored experiments with their parameter tables. The
format follows the output extension: .html renders a complete page, anything
else Markdown. Without --out the Markdown goes to stdout.

Example: bnla report --out outputs/report.html --run <run-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			repo, err := e.repository(ctx)
			if err != nil {
				return err
			}
			list, err := repo.ListExperiments(ctx, limit)
			if err != nil {
				return err
			}
			records := make([]*ports.ExperimentRecord, len(list))
			for i, rec := range list {
				if records[i], err = repo.GetExperiment(ctx, rec.ID); err != nil {
					return err
				}
			}
			opts := report.Options{Title: title, GeneratedAt: time.Now()}
			if runID != "" {
				id, err := uuid.Parse(runID)
				if err != nil {
					return errors.InvalidInput("invalid run id " + runID)
				}
				if opts.Limitation, err = repo.ListLimitation(ctx, id); err != nil {
					return err
				}
			}

			md := report.Markdown(records, opts)
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(md)
				return err
			}
			content := md
			if strings.EqualFold(filepath.Ext(outPath), ".html") {
				content = report.HTML(md, title)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", filepath.Dir(outPath))
			}
			if err := os.WriteFile(outPath, content, 0o644); err != nil {
				return errors.Wrapf(err, "failed to write %s", outPath)
			}
			green.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.md or .html)")
	cmd.Flags().StringVar(&runID, "run", "", "Include the limitation results of this run")
	cmd.Flags().StringVar(&title, "title", "", "Report title")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of newest experiments")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results as an HTML report and a read-only JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			repo, err := e.repository(ctx)
			if err != nil {
				return err
			}
			return ui.NewApp(ui.Config{Port: e.cfg.Server.Port}, repo, e.logger).Start(ctx)
		},
	}
}

func newSimulateCmd() *cobra.Command {
	var outPath string
	var lakes int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic lake survey drawn from known parameters",
		Long: `Generate a survey CSV from the limiting-nutrient model with a depth-dependent
critical ratio and random lake intercepts, for trying the pipeline end to end.

Example: bnla simulate --lakes 200 --out bnla_final.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultSurveyConfig()
			cfg.LakeCount = lakes
			cfg.Seed = seed
			if lakes < 2 {
				return errors.InvalidInput("--lakes must be at least 2")
			}
			ds := testkit.NewSurveyGenerator(cfg).Generate()

			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", filepath.Dir(outPath))
			}
			f, err := os.Create(outPath)
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", outPath)
			}
			if err := testkit.WriteCSV(f, ds); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "wrote %d visits of %d lakes to %s\n", ds.Len(), ds.NumLakes(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "bnla_final.csv", "Output CSV file")
	cmd.Flags().IntVar(&lakes, "lakes", 200, "Number of lakes")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "Generator seed")
	return cmd
}
