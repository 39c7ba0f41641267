// Package polytransform turns compact configuration strings into cached,
// reusable script transformations. A function string selects a named or
// inline script; the service resolves its source, keeps a prepared engine and
// compiled form per script identifier, and invalidates that state when the
// script, its dependencies, or the engine become stale.
package polytransform

import (
	"log/slog"

	"github.com/robbyt/go-polytransform/engines"
	extismEngine "github.com/robbyt/go-polytransform/engines/extism"
	luaEngine "github.com/robbyt/go-polytransform/engines/lua"
	risorEngine "github.com/robbyt/go-polytransform/engines/risor"
	starlarkEngine "github.com/robbyt/go-polytransform/engines/starlark"
	"github.com/robbyt/go-polytransform/registry"
	"github.com/robbyt/go-polytransform/transform"
)

// DefaultFactories returns the factory table for every engine shipped with
// this module, keyed by script type tag.
func DefaultFactories() map[string]engines.Factory {
	return map[string]engines.Factory{
		engines.TypeRisor:    risorEngine.Factory,
		engines.TypeStarlark: starlarkEngine.Factory,
		engines.TypeLua:      luaEngine.Factory,
		engines.TypeExtism:   extismEngine.Factory,
	}
}

// NewService creates a transformation service for the given script type with
// all bundled engines available.
func NewService(
	handler slog.Handler,
	scriptType string,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	provider := engines.NewProvider(handler, DefaultFactories())
	return transform.NewService(scriptType, reg, provider, withHandler(handler, opts)...)
}

// NewRisorService creates a transformation service evaluating Risor scripts.
func NewRisorService(
	handler slog.Handler,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	return newSingleEngineService(handler, engines.TypeRisor, risorEngine.Factory, reg, opts...)
}

// NewStarlarkService creates a transformation service evaluating Starlark
// scripts.
func NewStarlarkService(
	handler slog.Handler,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	return newSingleEngineService(handler, engines.TypeStarlark, starlarkEngine.Factory, reg, opts...)
}

// NewLuaService creates a transformation service evaluating Lua scripts.
func NewLuaService(
	handler slog.Handler,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	return newSingleEngineService(handler, engines.TypeLua, luaEngine.Factory, reg, opts...)
}

// NewExtismService creates a transformation service evaluating WASM modules
// via Extism. Script bodies are base64-encoded module binaries.
func NewExtismService(
	handler slog.Handler,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	return newSingleEngineService(handler, engines.TypeExtism, extismEngine.Factory, reg, opts...)
}

func newSingleEngineService(
	handler slog.Handler,
	scriptType string,
	factory engines.Factory,
	reg registry.Registry,
	opts ...transform.Option,
) (*transform.Service, error) {
	provider := engines.NewProvider(handler, map[string]engines.Factory{scriptType: factory})
	return transform.NewService(scriptType, reg, provider, withHandler(handler, opts)...)
}

// withHandler prepends a WithLogHandler option when a handler was provided;
// a nil handler falls through to the service's default logger setup.
func withHandler(handler slog.Handler, opts []transform.Option) []transform.Option {
	if handler == nil {
		return opts
	}
	return append([]transform.Option{transform.WithLogHandler(handler)}, opts...)
}
