// Package risor provides a transformation engine backed by the Risor VM.
// Scripts are compiled to bytecode once and re-run with fresh global bindings
// on each evaluation.
package risor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	risorLib "github.com/risor-io/risor"
	risorCompiler "github.com/risor-io/risor/compiler"
	risorErrors "github.com/risor-io/risor/errz"
	risorParser "github.com/risor-io/risor/parser"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
)

// Engine implements platform.Engine and platform.Compiler for Risor scripts.
// It is not safe for concurrent use; callers serialize access per handle.
type Engine struct {
	name   string
	vars   map[string]any
	closed bool

	logHandler slog.Handler
	logger     *slog.Logger
}

// Factory is an engines.Factory creating Risor engine handles.
func Factory(handler slog.Handler, engineName string) (platform.Engine, error) {
	return New(handler, engineName), nil
}

// New creates a Risor engine handle with an empty variable scope.
func New(handler slog.Handler, engineName string) *Engine {
	handler, logger := helpers.SetupLogger(handler, "risor", "Engine")

	return &Engine{
		name:       engineName,
		vars:       make(map[string]any),
		logHandler: handler,
		logger:     logger.With("engineName", engineName),
	}
}

func (e *Engine) String() string {
	return "risor.Engine"
}

// SetVar implements platform.Engine.
func (e *Engine) SetVar(name string, value any) {
	e.vars[name] = value
}

// UnsetVar implements platform.Engine.
func (e *Engine) UnsetVar(name string) {
	delete(e.vars, name)
}

// Compile implements platform.Compiler. The bytecode is compiled with global
// names for every variable currently bound on the engine, so scripts may
// reference them even though values are injected at eval time.
func (e *Engine) Compile(ctx context.Context, source string) (platform.Compiled, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	code, err := e.compile(ctx, source)
	if err != nil {
		return nil, err
	}
	return &compiledScript{engine: e, code: code}, nil
}

// Eval implements platform.Engine, compiling and running the source in one
// step with the current variable bindings.
func (e *Engine) Eval(ctx context.Context, source string) (any, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	code, err := e.compile(ctx, source)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, code)
}

// Close implements platform.Engine. The Risor VM holds no external resources,
// so closing only invalidates the handle.
func (e *Engine) Close(ctx context.Context) error {
	e.closed = true
	return nil
}

func (e *Engine) compile(ctx context.Context, source string) (*risorCompiler.Code, error) {
	if source == "" {
		return nil, ErrContentEmpty
	}

	ast, err := risorParser.Parse(ctx, source)
	if err != nil {
		// Produce a friendlier message for syntax errors when available
		errMsg := err.Error()
		var friendlyErr risorErrors.FriendlyError
		if errors.As(err, &friendlyErr) {
			errMsg = friendlyErr.FriendlyErrorMessage()
		}
		return nil, fmt.Errorf("%w: %s", ErrCompileFailed, errMsg)
	}

	// Compile with the default global names plus everything currently bound,
	// so injected variables resolve at eval time.
	globalNames := risorLib.NewConfig().GlobalNames()
	for name := range e.vars {
		if !slices.Contains(globalNames, name) {
			globalNames = append(globalNames, name)
		}
	}

	code, err := risorCompiler.Compile(ast, risorCompiler.WithGlobalNames(globalNames))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return code, nil
}

func (e *Engine) run(ctx context.Context, code *risorCompiler.Code) (any, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	opts := make([]risorLib.Option, 0, len(e.vars))
	for name, value := range e.vars {
		opts = append(opts, risorLib.WithGlobal(name, value))
	}

	result, err := risorLib.EvalCode(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("risor execution error: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	switch result.Type() {
	case "error":
		return nil, fmt.Errorf("error returned from script: %s", result.Inspect())
	case "function":
		return nil, fmt.Errorf("function object returned from script: %s", result.Inspect())
	}

	e.logger.Debug("execution complete", "resultType", result.Type())
	return result.Interface(), nil
}

// compiledScript is the reusable compiled form of a Risor script, bound to the
// engine that compiled it.
type compiledScript struct {
	engine *Engine
	code   *risorCompiler.Code
}

// Eval implements platform.Compiled.
func (c *compiledScript) Eval(ctx context.Context) (any, error) {
	return c.engine.run(ctx, c.code)
}
