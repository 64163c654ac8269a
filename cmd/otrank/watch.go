package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/otrank/dataset"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <path-or-glob>...",
		Short: "Re-rank tableau files whenever their content changes",
		Long: `Rank every matching tableau file once, then keep watching and re-rank a file
each time its content changes. Saving a file without changing it does not
trigger a new ranking. Stops on interrupt.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("debounce") {
				app.cfg.Watch.Debounce = debounce
			}
			if cmd.Flags().Changed("metrics-addr") {
				app.cfg.Metrics.Addr = metricsAddr
			}

			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			return app.Watch(ctx, args)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Wait this long for more changes before re-ranking (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

// Watch ranks the datasets matched by patterns, then re-ranks each one when
// its content changes, until ctx is cancelled.
func (a *App) Watch(ctx context.Context, patterns []string) error {
	w, err := dataset.NewWatcher(dataset.WatchConfig{
		Patterns: patterns,
		Debounce: a.cfg.Watch.Debounce,
	}, a.logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	if a.cfg.Metrics.Addr != "" {
		stop := a.serveMetrics(a.cfg.Metrics.Addr)
		defer stop()
	}

	if err := w.Start(ctx); err != nil {
		return err
	}

	// Initial pass over what exists now
	if paths, err := dataset.Resolve(patterns); err == nil {
		for _, path := range paths {
			a.rankAndDeliver(ctx, path)
		}
	} else {
		a.logger.Warn("No datasets yet", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Watch stopped")
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch ev.Op {
			case dataset.OpDelete:
				a.logger.Info("Dataset removed", "path", ev.Path)
			default:
				a.logger.Info("Dataset changed", "path", ev.Path, "op", ev.Op, "cid", ev.CID)
				a.rankAndDeliver(ctx, ev.Path)
			}
		}
	}
}

// rankAndDeliver ranks one dataset in watch mode, where failures are logged
// rather than returned.
func (a *App) rankAndDeliver(ctx context.Context, path string) {
	r, err := a.Rank(path)
	if err != nil {
		a.logger.Warn("Ranking failed", "path", path, "error", err)
	}
	if err := a.Deliver(ctx, r); err != nil {
		a.logger.Error("Failed to deliver report", "path", path, "error", err)
	}
}

// serveMetrics exposes /metrics on addr and returns a function that shuts
// the server down.
func (a *App) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.recorder.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown", "error", err)
		}
	}
}
