package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/abelbrown/iasi/internal/batch"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/metrics"
	"github.com/abelbrown/iasi/internal/watch"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "Quiet period before the inbox is scanned")
	addr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9109)")
	fs.Parse(args)

	e, err := setup("watch")
	if err != nil {
		return err
	}
	defer e.close("watch")

	st, err := e.openDB()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	m := metrics.New()
	runner := batch.New(e.cfg, batch.WithStore(st), batch.WithMetrics(m), batch.WithEvents(e.events))

	if *addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logging.Info("Serving metrics", "addr", *addr)
	}

	trigger := func(ctx context.Context, files []watch.Ingested) error {
		names := affectedEvents(e, files)
		if len(names) == 0 {
			logging.Info("Ingested files match no configured event", "files", len(files))
			return nil
		}
		sum, err := runner.Run(ctx, names...)
		fmt.Printf("%s  run %s: %d events, %d failed\n", time.Now().Format("15:04:05"),
			sum.RunID, len(sum.Results), len(sum.Failed()))
		return err
	}

	w := watch.New(e.cfg.Resolve(e.cfg.InboxDir), e.cfg.Resolve(e.cfg.FeaturesDir), trigger,
		watch.WithDebounce(*debounce), watch.WithEvents(e.events))
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", e.cfg.Resolve(e.cfg.InboxDir))
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// affectedEvents returns the configured events whose feature file received
// rows.
func affectedEvents(e *env, files []watch.Ingested) []string {
	touched := make(map[string]bool, len(files))
	for _, f := range files {
		touched[f.Features] = true
	}
	var names []string
	for _, ev := range e.cfg.Events {
		if touched[e.cfg.Resolve(ev.Features)] {
			names = append(names, ev.Name)
		}
	}
	return names
}
