package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert, stage and load every file in the data directory",
	Long: `Runs CONVERT, TRANSFORM_AND_STAGE and LOAD in order. A conversion error or any
file that fails to stage stops the run before loading; a rejected chunk stops
the load.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := initPipeline(ctx, "run", stageNeeds{converter: true, store: true})
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := p.Run(ctx)
		printReport(os.Stdout, report)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
