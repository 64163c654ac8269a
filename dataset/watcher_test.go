package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, patterns ...string) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatchConfig{Patterns: patterns, Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	// Give watcher time to set up
	time.Sleep(100 * time.Millisecond)
	return w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watch event")
		return Event{}
	}
}

func noEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(WatchConfig{}, nil)
	assert.Error(t, err)

	_, err = NewWatcher(WatchConfig{Patterns: []string{filepath.Join(t.TempDir(), "missing.csv")}}, nil)
	assert.Error(t, err)
}

func TestWatcher_Matches(t *testing.T) {
	dir := layout(t, "a.csv", "sub/b.csv")
	w, err := NewWatcher(WatchConfig{Patterns: []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "sub", "*.csv"),
	}}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.Matches(filepath.Join(dir, "a.csv")))
	assert.True(t, w.Matches(filepath.Join(dir, "sub", "new.csv")))
	assert.False(t, w.Matches(filepath.Join(dir, "other.csv")))
	assert.False(t, w.Matches(filepath.Join(dir, "sub", "new.tsv")))
}

func TestWatcher_DirectoryPattern(t *testing.T) {
	dir := layout(t, "a.csv")
	w, err := NewWatcher(WatchConfig{Patterns: []string{dir}}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.Matches(filepath.Join(dir, "deep", "b.tsv")))
	assert.False(t, w.Matches(filepath.Join(dir, "notes.md")))
	assert.Equal(t, DefaultDebounce, w.config.Debounce)
}

func TestWatcher_SeedsFingerprints(t *testing.T) {
	dir := layout(t, "a.csv", "b.csv", "notes.md")
	w := startWatcher(t, dir)

	assert.Equal(t, 2, w.Len())
	_, ok := w.CID(filepath.Join(dir, "a.csv"))
	assert.True(t, ok)
}

func TestWatcher_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, filepath.Join(dir, "*.csv"))
	path := filepath.Join(dir, "new.csv")

	// Create
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	ev := nextEvent(t, w)
	assert.Equal(t, OpCreate, ev.Op)
	assert.Equal(t, path, ev.Path)
	want, err := Fingerprint([]byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, want, ev.CID)

	// Same content again is ignored
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	noEvent(t, w)

	// Modify
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))
	ev = nextEvent(t, w)
	assert.Equal(t, OpModify, ev.Op)

	// Non-matching files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	noEvent(t, w)

	// Delete
	require.NoError(t, os.Remove(path))
	ev = nextEvent(t, w)
	assert.Equal(t, OpDelete, ev.Op)
	assert.Empty(t, ev.CID)
	assert.Equal(t, 0, w.Len())
}

func TestWatcher_ClosesEventsOnCancel(t *testing.T) {
	dir := layout(t, "a.csv")
	w, err := NewWatcher(WatchConfig{Patterns: []string{dir}, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}
