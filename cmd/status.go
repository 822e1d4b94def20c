package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bagload/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the load log of staged files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.LoadStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			zap.L().Info("no files loaded yet, run 'bagload load' first")
			return nil
		}

		formatLoadEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatLoadEntries writes a tabular representation of load entries to out.
func formatLoadEntries(out io.Writer, entries []store.LoadEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tCOLLECTION\tRECORDS\tHASH\tLOADED AT")
	_, _ = fmt.Fprintln(w, "----\t----------\t-------\t----\t---------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.File, e.Collection, e.Records, e.Hash, e.LoadedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
