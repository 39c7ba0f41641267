package registry

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/robbyt/go-polytransform/internal/helpers"
)

// MemoryRegistry is an in-process Registry implementation with change
// notification fan-out. It is safe for concurrent use.
type MemoryRegistry struct {
	mu        sync.RWMutex
	items     map[string]Transformation
	listeners []ChangeListener

	logHandler slog.Handler
	logger     *slog.Logger
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry(handler slog.Handler) *MemoryRegistry {
	handler, logger := helpers.SetupLogger(handler, "registry", "MemoryRegistry")

	return &MemoryRegistry{
		items:      make(map[string]Transformation),
		logHandler: handler,
		logger:     logger,
	}
}

func (r *MemoryRegistry) String() string {
	return "registry.MemoryRegistry"
}

// Get implements Registry.
func (r *MemoryRegistry) Get(uid string) *Transformation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.items[uid]
	if !ok {
		return nil
	}
	return &t
}

// OfType implements Registry.
func (r *MemoryRegistry) OfType(types ...string) []Transformation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Transformation
	for _, t := range r.items {
		if slices.Contains(types, t.Type) {
			out = append(out, t)
		}
	}
	return out
}

// Add stores a new transformation and notifies listeners. If the UID already
// exists the call is treated as an Update.
func (r *MemoryRegistry) Add(t Transformation) {
	r.mu.Lock()
	old, exists := r.items[t.UID]
	r.items[t.UID] = t
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Debug("transformation stored", "uid", t.UID, "type", t.Type, "update", exists)
	for _, l := range listeners {
		if exists {
			l.Updated(old, t)
		} else {
			l.Added(t)
		}
	}
}

// Update replaces an existing transformation and notifies listeners. Unknown
// UIDs are stored as new definitions, matching Add.
func (r *MemoryRegistry) Update(t Transformation) {
	r.Add(t)
}

// Remove deletes the transformation with the given UID and notifies listeners.
// Removing an unknown UID is a no-op.
func (r *MemoryRegistry) Remove(uid string) {
	r.mu.Lock()
	old, exists := r.items[uid]
	if exists {
		delete(r.items, uid)
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	if !exists {
		return
	}

	r.logger.Debug("transformation removed", "uid", uid)
	for _, l := range listeners {
		l.Removed(old)
	}
}

// AddChangeListener implements Watchable.
func (r *MemoryRegistry) AddChangeListener(l ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RemoveChangeListener implements Watchable.
func (r *MemoryRegistry) RemoveChangeListener(l ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = slices.DeleteFunc(r.listeners, func(existing ChangeListener) bool {
		return existing == l
	})
}
