package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk load staging_*.json files into the store",
	Long: `Loads staged files in name order, one chunk at a time. Staged files are kept,
so a failed load can be re-run without converting or staging again.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := initPipeline(ctx, "load", stageNeeds{store: true})
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := p.Load(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d records\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
