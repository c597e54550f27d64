package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information, set at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "bnla",
		Short: "Bayesian nutrient-limitation analysis of lake chlorophyll",
		Long: `bnla fits hierarchical Bayesian regressions of lake chlorophyll on
phosphorus and nitrogen, cross-validates and selects them, and estimates the
probability that each lake is phosphorus limited.

Settings come from the environment (optionally a .env file); experiments come
from a YAML file.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.envFile, "env-file", ".env", "Optional .env file with BNLA_* settings")
	flags.StringVar(&g.dataFile, "data", "", "Survey CSV or xlsx file (overrides BNLA_DATA_FILE)")
	flags.StringVar(&g.experimentsFile, "experiments", "", "Experiments YAML file (overrides BNLA_EXPERIMENTS_FILE)")
	flags.BoolVar(&g.save, "save", false, "Persist results to the configured database")
	flags.BoolVar(&g.saveDraws, "save-draws", false, "Export monitored posterior draws to the output directory")

	rootCmd.AddCommand(
		newRunCmd(g),
		newCrossValCmd(g),
		newSelectCmd(g),
		newLimitationCmd(g),
		newMigrateCmd(g),
		newReportCmd(g),
		newServeCmd(g),
		newSimulateCmd(),
	)
	return rootCmd
}
