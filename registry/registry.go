package registry

// Transformation is a named script definition stored in a transformation
// registry. Function holds the raw script body.
type Transformation struct {
	UID      string
	Label    string
	Type     string
	Function string
}

// Registry provides read access to stored transformation definitions.
type Registry interface {
	// Get returns the transformation with the given UID, or nil if absent.
	Get(uid string) *Transformation

	// OfType returns all transformations whose Type matches one of the given
	// script types. Order is unspecified.
	OfType(types ...string) []Transformation
}

// ChangeListener receives definition change notifications from a registry.
// Callbacks must not block for long; registries may dispatch them
// synchronously from the mutating call.
type ChangeListener interface {
	Added(t Transformation)
	Updated(old Transformation, t Transformation)
	Removed(t Transformation)
}

// Watchable is implemented by registries that support change subscriptions.
type Watchable interface {
	AddChangeListener(l ChangeListener)
	RemoveChangeListener(l ChangeListener)
}
