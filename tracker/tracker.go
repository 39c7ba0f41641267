// Package tracker defines the dependency-change subscription used to
// invalidate cached scripts when their underlying sources change outside the
// transformation registry (e.g., an included file on disk).
package tracker

// Listener receives dependency-change notifications. The scriptID is the
// engine-qualified identifier the script was registered under.
type Listener interface {
	OnDependencyChange(scriptID string)
}

// Tracker is a source of dependency-change events.
type Tracker interface {
	AddListener(l Listener)
	RemoveListener(l Listener)
}
