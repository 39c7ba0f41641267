package platform

import (
	"context"
	"errors"
)

// ErrContextClosed is reported by an Engine whose underlying execution context
// has been invalidated out-of-band. Callers holding a stale handle should
// discard it and request a fresh engine from the Provider. Engines wrap this
// sentinel so callers can match it with errors.Is.
var ErrContextClosed = errors.New("engine context is already closed")

// Engine is an opaque handle to a live script-execution context bound to one
// script type. Engines are not safe for concurrent use; callers must serialize
// access to a single handle (the transformation service does this with a
// per-script lock).
type Engine interface {
	// SetVar binds name as an execution-scoped variable visible to subsequent
	// evaluations on this engine.
	SetVar(name string, value any)

	// UnsetVar removes a variable previously bound with SetVar.
	UnsetVar(name string)

	// Eval evaluates the script source directly and returns its result value,
	// or nil if the script produced none.
	Eval(ctx context.Context, source string) (any, error)

	// Close releases the execution context. After Close, Eval returns an error
	// wrapping ErrContextClosed.
	Close(ctx context.Context) error
}

// Compiler is an optional Engine capability for ahead-of-time compilation.
// Detect it with a type assertion on the Engine handle; engines without it
// evaluate source text directly on every call.
type Compiler interface {
	// Compile pre-parses the script source into a reusable Compiled form.
	// Variables bound on the engine at compile time are visible to languages
	// that snapshot bindings during compilation.
	Compile(ctx context.Context, source string) (Compiled, error)
}

// Compiled is an engine-specific pre-parsed representation of a script body,
// reusable across evaluations on the engine that produced it.
type Compiled interface {
	// Eval runs the compiled form with the engine's current variable bindings.
	Eval(ctx context.Context) (any, error)
}

// Provider creates and destroys script engines. Implementations own the
// lifecycle of every engine they hand out; RemoveEngine releases the engine
// identified by the name it was created under.
type Provider interface {
	// IsSupported reports whether the given script type is currently backed by
	// an available engine implementation.
	IsSupported(scriptType string) bool

	// CreateEngine returns a new engine instance for the script type, keyed by
	// engineName for later removal.
	CreateEngine(ctx context.Context, scriptType string, engineName string) (Engine, error)

	// RemoveEngine releases the engine created under engineName, closing its
	// execution context. Unknown names are ignored.
	RemoveEngine(ctx context.Context, engineName string)
}
