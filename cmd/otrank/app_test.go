package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/otrank/config"
	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/rcd"
)

func newTestApp(t *testing.T, modify func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	if modify != nil {
		modify(cfg)
	}
	var out bytes.Buffer
	app, err := NewApp(cfg, nil, &out)
	require.NoError(t, err)
	return app, &out
}

func TestNewApp_RejectsUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Format = "rdf"
	_, err := NewApp(cfg, nil, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestApp_StartWithoutNATS(t *testing.T) {
	app, _ := newTestApp(t, nil)
	require.NoError(t, app.Start(context.Background()))
	assert.Nil(t, app.Store())
	app.Shutdown()
}

func TestApp_RankAndDeliver(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "syllables.csv"), syllables)
	app, out := newTestApp(t, func(c *config.Config) { c.Output.Format = "yaml" })

	r, err := app.Rank(path)
	require.NoError(t, err)
	assert.Equal(t, "syllables.csv", r.Dataset)
	assert.Equal(t, export.StatusRanked, r.Status)
	assert.NotEmpty(t, r.DatasetCID)
	assert.Equal(t, "/pat/", r.Tableau.Competitions[0].Input)

	require.NoError(t, app.Deliver(context.Background(), r))
	assert.Contains(t, out.String(), "status: ranked")
	assert.Contains(t, out.String(), "dataset: syllables.csv")
}

func TestApp_RankUnrankable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "bad.csv"), contradictory)
	app, _ := newTestApp(t, nil)

	r, err := app.Rank(path)
	assert.ErrorIs(t, err, rcd.ErrUnrankable)
	assert.Equal(t, export.StatusUnrankable, r.Status)
	assert.NotEmpty(t, r.DatasetCID, "fingerprint is kept for failed rankings")
}

func TestApp_OutputPath(t *testing.T) {
	app, _ := newTestApp(t, func(c *config.Config) {
		c.Output.Format = "json"
		c.Output.Dir = "out"
	})

	assert.Equal(t, filepath.Join("out", "syllables.json"), app.OutputPath("data/syllables.csv"))
	assert.Equal(t, filepath.Join("out", "notes.json"), app.OutputPath("notes"))
}

func TestApp_CheckOutputNames(t *testing.T) {
	app, _ := newTestApp(t, nil)
	assert.NoError(t, app.checkOutputNames([]string{"a/x.csv", "b/x.csv"}), "no output dir, no clash")

	app.cfg.Output.Dir = "out"
	assert.NoError(t, app.checkOutputNames([]string{"a/x.csv", "b/y.csv"}))
	assert.Error(t, app.checkOutputNames([]string{"a/x.csv", "b/x.tsv"}))
}

func TestReportError(t *testing.T) {
	assert.NoError(t, reportError(&export.Report{Status: export.StatusRanked}))

	err := reportError(&export.Report{Dataset: "bad.csv", Status: export.StatusUnrankable})
	assert.ErrorIs(t, err, rcd.ErrUnrankable)
	assert.Contains(t, err.Error(), "bad.csv")

	err = reportError(&export.Report{Status: export.StatusError, Failure: &export.Failure{Message: "read dataset: gone"}})
	assert.EqualError(t, err, "read dataset: gone")
	assert.False(t, errors.Is(err, rcd.ErrUnrankable))
}

func TestWrapNATSError(t *testing.T) {
	err := wrapNATSError(errors.New("dial tcp: connection refused"), "nats://localhost:4222")
	assert.Contains(t, err.Error(), "NATS is not running at nats://localhost:4222")

	err = wrapNATSError(errors.New("authorization violation"), "nats://localhost:4222")
	assert.Equal(t, "NATS connection failed: authorization violation", err.Error())
}
