package registry

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	added   []Transformation
	updated [][2]Transformation
	removed []Transformation
}

func (l *recordingListener) Added(t Transformation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.added = append(l.added, t)
}

func (l *recordingListener) Updated(old Transformation, t Transformation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updated = append(l.updated, [2]Transformation{old, t})
}

func (l *recordingListener) Removed(t Transformation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, t)
}

func newTestRegistry() *MemoryRegistry {
	return NewMemoryRegistry(slog.NewTextHandler(os.Stdout, nil))
}

func TestMemoryRegistryGet(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	require.Nil(t, reg.Get("missing"))

	reg.Add(Transformation{UID: "a", Label: "A", Type: "lua", Function: "return input"})

	got := reg.Get("a")
	require.NotNil(t, got)
	require.Equal(t, "return input", got.Function)

	// the returned value is a copy, not a handle into the store
	got.Function = "mutated"
	require.Equal(t, "return input", reg.Get("a").Function)
}

func TestMemoryRegistryOfType(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	reg.Add(Transformation{UID: "a", Type: "lua"})
	reg.Add(Transformation{UID: "b", Type: "lua"})
	reg.Add(Transformation{UID: "c", Type: "risor"})

	lua := reg.OfType("lua")
	require.Len(t, lua, 2)

	both := reg.OfType("lua", "risor")
	require.Len(t, both, 3)

	require.Empty(t, reg.OfType("starlark"))
}

func TestMemoryRegistryChangeEvents(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	listener := &recordingListener{}
	reg.AddChangeListener(listener)

	t.Run("add fires Added", func(t *testing.T) {
		reg.Add(Transformation{UID: "a", Type: "lua", Function: "v1"})
		require.Len(t, listener.added, 1)
		require.Equal(t, "a", listener.added[0].UID)
	})

	t.Run("re-add fires Updated with the old value", func(t *testing.T) {
		reg.Add(Transformation{UID: "a", Type: "lua", Function: "v2"})
		require.Len(t, listener.updated, 1)
		require.Equal(t, "v1", listener.updated[0][0].Function)
		require.Equal(t, "v2", listener.updated[0][1].Function)
	})

	t.Run("update aliases add", func(t *testing.T) {
		reg.Update(Transformation{UID: "a", Type: "lua", Function: "v3"})
		require.Len(t, listener.updated, 2)
	})

	t.Run("remove fires Removed", func(t *testing.T) {
		reg.Remove("a")
		require.Len(t, listener.removed, 1)
		require.Equal(t, "v3", listener.removed[0].Function)
		require.Nil(t, reg.Get("a"))
	})

	t.Run("removing an unknown UID fires nothing", func(t *testing.T) {
		reg.Remove("never-existed")
		require.Len(t, listener.removed, 1)
	})
}

func TestMemoryRegistryRemoveChangeListener(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry()
	listener := &recordingListener{}
	reg.AddChangeListener(listener)
	reg.RemoveChangeListener(listener)

	reg.Add(Transformation{UID: "a", Type: "lua"})
	require.Empty(t, listener.added)
}
