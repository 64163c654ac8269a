// Package publish sends ranking reports to NATS.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/otrank/export"
)

// DefaultTimeout bounds connecting and flushing when none is configured.
const DefaultTimeout = 5 * time.Second

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("publisher closed")

// Publisher delivers reports somewhere outside the process.
type Publisher interface {
	Publish(ctx context.Context, r *export.Report) error
	Close() error
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
	IsClosed() bool
}

// NATSPublisher publishes each report as JSON on a fixed subject.
type NATSPublisher struct {
	nc      conn
	subject string
	timeout time.Duration
	logger  *slog.Logger
}

// Options configures a NATSPublisher.
type Options struct {
	URL     string
	Subject string
	Timeout time.Duration
	// Name identifies the connection to the server.
	Name string
}

// Dial connects to the NATS server named by opts.URL.
func Dial(opts Options) (*nats.Conn, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Name == "" {
		opts.Name = "otrank"
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(opts.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Connect dials the NATS server and returns a publisher for opts.Subject.
// Closing the publisher closes the connection.
func Connect(opts Options, logger *slog.Logger) (*NATSPublisher, error) {
	if opts.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	nc, err := Dial(opts)
	if err != nil {
		return nil, err
	}
	return New(nc, opts.Subject, opts.Timeout, logger), nil
}

// New returns a publisher on an existing connection. Closing the publisher
// drains nc.
func New(nc *nats.Conn, subject string, timeout time.Duration, logger *slog.Logger) *NATSPublisher {
	return newPublisher(nc, subject, timeout, logger)
}

func newPublisher(nc conn, subject string, timeout time.Duration, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATSPublisher{
		nc:      nc,
		subject: subject,
		timeout: timeout,
		logger:  logger,
	}
}

// Subject returns the subject reports are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish encodes r as JSON, publishes it and waits for the server to
// acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, r *export.Report) error {
	if p.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(HeaderRunID, r.RunID)
	msg.Header.Set(HeaderStatus, string(r.Status))
	if r.DatasetCID != "" {
		msg.Header.Set(HeaderDatasetCID, r.DatasetCID)
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}

	p.logger.Debug("Published report",
		"subject", p.subject,
		"run_id", r.RunID,
		"status", r.Status,
		"bytes", len(data))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc.IsClosed() {
		return nil
	}
	return p.nc.Drain()
}

// Message headers set on every published report.
const (
	HeaderRunID      = "Otrank-Run-Id"
	HeaderStatus     = "Otrank-Status"
	HeaderDatasetCID = "Otrank-Dataset-Cid"
)

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, r *export.Report) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
