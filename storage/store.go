// Package storage keeps ranking reports in a NATS KV bucket.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/otrank/export"
)

// DefaultBucket is the KV bucket reports are stored in.
const DefaultBucket = "OTRANK_REPORTS"

// Store provides report storage backed by NATS KV, keyed by run ID.
type Store struct {
	reports jetstream.KeyValue
}

// NewStore creates a new Store with the given JetStream context.
// It creates the bucket if it doesn't exist.
func NewStore(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	reports, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("create reports bucket: %w", err)
	}
	return &Store{reports: reports}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, err
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("otrank %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Save stores r under its run ID, replacing any earlier revision.
func (s *Store) Save(ctx context.Context, r *export.Report) error {
	if r.RunID == "" {
		return fmt.Errorf("store report: missing run ID")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if _, err := s.reports.Put(ctx, r.RunID, data); err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	return nil
}

// Get retrieves a report by run ID.
func (s *Store) Get(ctx context.Context, runID string) (*export.Report, error) {
	entry, err := s.reports.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}

	var r export.Report
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	return &r, nil
}

// List returns all stored reports, oldest first.
func (s *Store) List(ctx context.Context) ([]*export.Report, error) {
	keys, err := s.reports.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list report keys: %w", err)
	}

	reports := make([]*export.Report, 0, len(keys))
	for _, key := range keys {
		r, err := s.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		reports = append(reports, r)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})
	return reports, nil
}

// FindByCID returns the most recent report for the dataset content cid
// ranked with the given markedness bias setting.
func (s *Store) FindByCID(ctx context.Context, cid string, markednessBias bool) (*export.Report, error) {
	reports, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		if r.DatasetCID == cid && r.MarkednessBias == markednessBias {
			return r, nil
		}
	}

	return nil, ErrNotFound
}

// Publish saves r, so a Store can sit next to other report publishers.
func (s *Store) Publish(ctx context.Context, r *export.Report) error {
	return s.Save(ctx, r)
}

// Close is a no-op; the connection belongs to the caller.
func (s *Store) Close() error {
	return nil
}
