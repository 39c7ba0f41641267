package filetracker

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu  sync.Mutex
	ids []string
}

func (l *recordingListener) OnDependencyChange(scriptID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, scriptID)
}

func (l *recordingListener) received() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.ids)
}

func newTestTracker(t *testing.T) *FileTracker {
	t.Helper()
	ft, err := New(slog.NewTextHandler(os.Stdout, nil))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ft.Close())
	})
	return ft
}

func writeScriptFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTrackNotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.lua")
	writeScriptFile(t, path, "return input")

	ft := newTestTracker(t)
	listener := &recordingListener{}
	ft.AddListener(listener)

	require.NoError(t, ft.Track("script-1", path))

	writeScriptFile(t, path, "return input .. '!'")
	require.Eventually(t, func() bool {
		return slices.Contains(listener.received(), "script-1")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTrackFansOutToAllDependents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.lua")
	writeScriptFile(t, path, "return input")

	ft := newTestTracker(t)
	listener := &recordingListener{}
	ft.AddListener(listener)

	require.NoError(t, ft.Track("script-1", path))
	require.NoError(t, ft.Track("script-2", path))

	writeScriptFile(t, path, "return input .. '!'")
	require.Eventually(t, func() bool {
		ids := listener.received()
		return slices.Contains(ids, "script-1") && slices.Contains(ids, "script-2")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUntrackStopsNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.lua")
	writeScriptFile(t, path, "return input")

	ft := newTestTracker(t)
	listener := &recordingListener{}
	ft.AddListener(listener)

	require.NoError(t, ft.Track("script-1", path))
	ft.Untrack("script-1", path)

	writeScriptFile(t, path, "return input .. '!'")
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, listener.received())
}

func TestRemoveListenerStopsNotifications(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.lua")
	writeScriptFile(t, path, "return input")

	ft := newTestTracker(t)
	listener := &recordingListener{}
	ft.AddListener(listener)
	ft.RemoveListener(listener)

	require.NoError(t, ft.Track("script-1", path))

	writeScriptFile(t, path, "return input .. '!'")
	time.Sleep(200 * time.Millisecond)
	require.Empty(t, listener.received())
}

func TestTrackMissingFile(t *testing.T) {
	ft := newTestTracker(t)
	err := ft.Track("script-1", filepath.Join(t.TempDir(), "does-not-exist.lua"))
	require.Error(t, err)
}
