package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert nummer*.shp shapefiles to GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, cleanup, err := initPipeline(ctx, "convert", stageNeeds{converter: true})
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := p.Convert(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("converted %d files\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
