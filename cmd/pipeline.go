package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bagload/internal/convert"
	"github.com/sells-group/bagload/internal/extract"
	"github.com/sells-group/bagload/internal/store"
)

// stageNeeds lists the collaborators a command needs.
type stageNeeds struct {
	converter bool
	store     bool
}

// initPipeline validates config for mode and builds a pipeline with the
// requested collaborators. The returned cleanup closes the store.
func initPipeline(ctx context.Context, mode string, needs stageNeeds) (*extract.Pipeline, func(), error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, nil, err
	}
	opts, err := extract.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	var conv convert.Converter
	if needs.converter {
		conv, err = convert.New(cfg.Extract)
		if err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() {}
	var st store.Store
	if needs.store {
		st, err = openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = st.Close() }
	}

	return extract.New(opts, conv, st), cleanup, nil
}

// openStore opens the configured store and applies its migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// printReport writes a run summary to w.
func printReport(w io.Writer, r extract.Report) {
	_, _ = fmt.Fprintf(w, "run %s\n", r.RunID)
	_, _ = fmt.Fprintf(w, "  converted: %d files in %s\n", r.Converted, r.ConvertTime.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  staged:    %d files in %s\n", r.Stage.Succeeded, r.StageTime.Round(time.Millisecond))
	if len(r.Stage.Failed) > 0 {
		_, _ = fmt.Fprintf(w, "  failed:    %s\n", strings.Join(r.Stage.Failed, ", "))
	}
	_, _ = fmt.Fprintf(w, "  loaded:    %d records in %s\n", r.Loaded, r.LoadTime.Round(time.Millisecond))
}
