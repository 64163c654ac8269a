package rcd

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	g := build([]string{"A", "B"},
		win("in", "w", 0, 1),
		lose("in", "l", 1, 0),
	)
	_, err := Run(g, WithTracer(LoggingTracer{Logger: logger}))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "RCD step")
	assert.Contains(t, out, "iteration=1")
	assert.Contains(t, out, "done=true")
}

func TestLoggingTracer_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	g := build([]string{"A"},
		win("in", "w", 1),
		lose("in", "l", 0),
	)
	_, err := Run(g, WithTracer(LoggingTracer{Logger: logger}))
	require.Error(t, err)

	assert.Contains(t, buf.String(), "RCD failed")
	assert.Contains(t, buf.String(), "reason=no-winner-preferring")
}

func TestTracers_FanOut(t *testing.T) {
	var a, b recordingTracer
	g := build([]string{"A", "B", "C"},
		win("/one/", "w1", 0, 1, 0),
		lose("/one/", "l1", 1, 0, 0),
		win("/two/", "w2", 0, 0, 1),
		lose("/two/", "l2", 0, 1, 0),
	)

	_, err := Run(g, WithTracer(Tracers{&a, &b, DefaultTracer{}}))
	require.NoError(t, err)
	assert.Len(t, a.steps, 2)
	assert.Len(t, b.steps, 2)
	assert.Empty(t, a.failures)
}
