// ml-pipeline drives the market-data ML workflow: fetch quotes, engineer
// features, train models, run predictions and inspect cached versions.
//
// Usage:
//
//	ml-pipeline fetch --symbol AAPL --mode daily --outputsize full
//	ml-pipeline features --symbol AAPL --mode daily --outputsize full --add-target return
//	ml-pipeline train --symbol AAPL --mode daily --outputsize full --model ridge_regression
//	ml-pipeline predict --symbol AAPL --mode daily --outputsize full --model ridge_regression
//	ml-pipeline versions --symbol AAPL --type features --mode daily --outputsize full
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ml-pipeline",
		Short:         "Versioned market-data ML pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default $MARKETML_CONFIG or config/marketml.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newFetchCmd(opts),
		newFeaturesCmd(opts),
		newTrainCmd(opts),
		newPredictCmd(opts),
		newVersionsCmd(opts),
	)
	return root
}
