package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bagload",
	Short: "BAG address extraction and bulk load",
	Long: `Converts BAG nummeraanduiding shapefiles to GeoJSON, stages canonical address
records in parallel and bulk loads them into Postgres, SQLite or MongoDB.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlagOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	addPipelineFlags(rootCmd)
}

// addPipelineFlags registers the flags shared by every subcommand. A flag
// overrides config only when set explicitly.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("data-dir", "", "directory holding nummer*.shp, nummer*.json and staging_*.json")
	f.String("reference-file", "", "woonplaats/gemeente reference JSON")
	f.String("converter", "", "shapefile converter: ogr2ogr or native")
	f.Int("workers", 0, "max parallel transform tasks")
	f.Int("chunk-size", 0, "records per bulk insert")
	f.Bool("reproject-in-process", false, "reproject RD New while staging instead of while converting")
	f.Bool("incremental", false, "skip staged files unchanged since their last load")
	f.String("driver", "", "store driver: postgres, sqlite or mongo")
	f.String("database-url", "", "store connection string or sqlite path")
	f.String("collection", "", "target collection or table")
}

func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.Extract.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("reference-file") {
		c.Extract.ReferenceFile, _ = flags.GetString("reference-file")
	}
	if flags.Changed("converter") {
		c.Extract.Converter, _ = flags.GetString("converter")
	}
	if flags.Changed("workers") {
		c.Extract.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("chunk-size") {
		c.Extract.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("reproject-in-process") {
		c.Extract.ReprojectInProcess, _ = flags.GetBool("reproject-in-process")
	}
	if flags.Changed("incremental") {
		c.Extract.Incremental, _ = flags.GetBool("incremental")
	}
	if flags.Changed("driver") {
		c.Store.Driver, _ = flags.GetString("driver")
	}
	if flags.Changed("database-url") {
		c.Store.DatabaseURL, _ = flags.GetString("database-url")
	}
	if flags.Changed("collection") {
		c.Store.Collection, _ = flags.GetString("collection")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
