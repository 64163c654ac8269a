package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/otrank/config"
	"github.com/c360studio/otrank/dataset"
	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/metrics"
	"github.com/c360studio/otrank/publish"
	"github.com/c360studio/otrank/rcd"
	"github.com/c360studio/otrank/storage"
	"github.com/c360studio/otrank/tableau"
)

// App wires configuration, ranking, rendering and report delivery together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	format export.Format
	stdout io.Writer

	recorder *metrics.Recorder

	// NATS, when configured
	natsConn  *nats.Conn
	store     *storage.Store
	publisher publish.Publisher
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*App, error) {
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		format:   format,
		stdout:   stdout,
		recorder: metrics.NewRecorder(),
	}, nil
}

// Start connects to NATS when a URL is configured.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.NATS.URL == "" {
		return nil
	}

	a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
	nc, err := publish.Dial(publish.Options{
		URL:     a.cfg.NATS.URL,
		Timeout: a.cfg.NATS.Timeout,
		Name:    appName,
	})
	if err != nil {
		return wrapNATSError(err, a.cfg.NATS.URL)
	}
	a.natsConn = nc

	var publishers publish.Multi
	if a.cfg.NATS.Subject != "" {
		publishers = append(publishers, publish.New(nc, a.cfg.NATS.Subject, a.cfg.NATS.Timeout, a.logger))
	}
	if a.cfg.NATS.Bucket != "" {
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := storage.NewStore(ctx, js, a.cfg.NATS.Bucket)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		a.store = store
		publishers = append(publishers, store)
	}
	a.publisher = publishers

	a.logger.Info("Connected to NATS",
		"url", a.cfg.NATS.URL,
		"subject", a.cfg.NATS.Subject,
		"bucket", a.cfg.NATS.Bucket)
	return nil
}

// Shutdown closes the NATS connection, if any.
func (a *App) Shutdown() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Failed to close publisher", "error", err)
		}
	}
	if a.natsConn != nil && !a.natsConn.IsClosed() {
		a.natsConn.Close()
	}
}

// Store returns the report store, or nil when no bucket is configured.
func (a *App) Store() *storage.Store {
	return a.store
}

// Rank loads one dataset and ranks it. The returned report is never nil;
// the error is the load or ranking failure the report describes.
func (a *App) Rank(path string) (*export.Report, error) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read dataset: %w", err)
		a.recorder.ObserveRun(nil, err)
		return export.NewReport(name, nil, nil, err), err
	}

	cid, err := dataset.Fingerprint(data)
	if err != nil {
		a.recorder.ObserveRun(nil, err)
		return export.NewReport(name, nil, nil, err), err
	}

	opts := a.cfg.TableauOptions()
	opts.Name = strings.TrimSuffix(name, filepath.Ext(name))
	g, err := tableau.Parse(bytes.NewReader(data), opts)
	if err != nil {
		err = fmt.Errorf("parse %s: %w", name, err)
		a.recorder.ObserveRun(nil, err)
		r := export.NewReport(name, nil, nil, err)
		r.DatasetCID = cid
		return r, err
	}

	res, err := rcd.Run(g,
		rcd.WithMarkednessBias(a.cfg.Rank.MarkednessBias),
		rcd.WithTracer(rcd.Tracers{rcd.LoggingTracer{Logger: a.logger.With("dataset", name)}, a.recorder}),
	)
	a.recorder.ObserveRun(res, err)

	r := export.NewReport(name, g, res, err)
	r.DatasetCID = cid
	r.MarkednessBias = a.cfg.Rank.MarkednessBias

	a.logger.Info("Ranked dataset",
		"dataset", name,
		"status", r.Status,
		"strata", len(r.Order),
		"cid", cid)
	return r, err
}

// storedReport finds a stored report for the current content of path,
// ranked with the current markedness bias setting.
func (a *App) storedReport(ctx context.Context, path string) (*export.Report, error) {
	if a.store == nil {
		return nil, storage.ErrNotFound
	}
	cid, err := dataset.FingerprintFile(path)
	if err != nil {
		return nil, err
	}
	r, err := a.store.FindByCID(ctx, cid, a.cfg.Rank.MarkednessBias)
	if err != nil {
		return nil, err
	}
	if r.Status == export.StatusError {
		return nil, storage.ErrNotFound
	}
	r.Dataset = filepath.Base(path)
	a.logger.Info("Reusing stored report", "dataset", r.Dataset, "run_id", r.RunID, "cid", cid)
	return r, nil
}

// reportError rebuilds the run error a report describes.
func reportError(r *export.Report) error {
	switch r.Status {
	case export.StatusUnrankable:
		return fmt.Errorf("%s: %w", r.Dataset, rcd.ErrUnrankable)
	case export.StatusError:
		if r.Failure != nil {
			return errors.New(r.Failure.Message)
		}
		return fmt.Errorf("%s: ranking failed", r.Dataset)
	}
	return nil
}

// Deliver writes r to stdout or the output directory and publishes it.
func (a *App) Deliver(ctx context.Context, r *export.Report) error {
	if err := a.write(r); err != nil {
		return err
	}
	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.Publish(ctx, r); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

func (a *App) write(r *export.Report) error {
	if a.cfg.Output.Dir == "" {
		return export.Write(a.stdout, r, a.format)
	}

	path := a.OutputPath(r.Dataset)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := export.Write(f, r, a.format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	a.logger.Debug("Wrote report", "path", path)
	return nil
}

// OutputPath is where the report for dataset goes when an output directory
// is configured.
func (a *App) OutputPath(dataset string) string {
	info, _ := export.GetFormatInfo(a.format)
	base := strings.TrimSuffix(filepath.Base(dataset), filepath.Ext(dataset))
	return filepath.Join(a.cfg.Output.Dir, base+info.Extension)
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Start a server or set nats.url in otrank.yaml to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
