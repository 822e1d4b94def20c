package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Transform nummer*.json files into staging_*.json files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := initPipeline(ctx, "stage", stageNeeds{})
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := p.Stage(ctx)
		fmt.Printf("staged %d files\n", res.Succeeded)
		if len(res.Failed) > 0 {
			fmt.Printf("failed: %s\n", strings.Join(res.Failed, ", "))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
}
