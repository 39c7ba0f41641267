// Package starlark provides a transformation engine backed by the Starlark
// interpreter. Scripts are compiled to a reusable Program once and initialized
// on a fresh thread per evaluation.
package starlark

import (
	"context"
	"fmt"
	"log/slog"

	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
)

// Engine implements platform.Engine and platform.Compiler for Starlark
// scripts. It is not safe for concurrent use; callers serialize access per
// handle.
type Engine struct {
	name   string
	vars   map[string]any
	closed bool

	logHandler slog.Handler
	logger     *slog.Logger
}

// Factory is an engines.Factory creating Starlark engine handles.
func Factory(handler slog.Handler, engineName string) (platform.Engine, error) {
	return New(handler, engineName), nil
}

// New creates a Starlark engine handle with an empty variable scope.
func New(handler slog.Handler, engineName string) *Engine {
	handler, logger := helpers.SetupLogger(handler, "starlark", "Engine")

	return &Engine{
		name:       engineName,
		vars:       make(map[string]any),
		logHandler: handler,
		logger:     logger.With("engineName", engineName),
	}
}

func (e *Engine) String() string {
	return "starlark.Engine"
}

// SetVar implements platform.Engine.
func (e *Engine) SetVar(name string, value any) {
	e.vars[name] = value
}

// UnsetVar implements platform.Engine.
func (e *Engine) UnsetVar(name string) {
	delete(e.vars, name)
}

// Compile implements platform.Compiler. Every variable currently bound on the
// engine is declared as a predeclared name, so scripts may reference bindings
// injected at eval time.
func (e *Engine) Compile(ctx context.Context, source string) (platform.Compiled, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	prog, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	return &compiledProgram{engine: e, prog: prog}, nil
}

// Eval implements platform.Engine, compiling and running the source in one
// step with the current variable bindings.
func (e *Engine) Eval(ctx context.Context, source string) (any, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	prog, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, prog)
}

// Close implements platform.Engine. The interpreter holds no external
// resources, so closing only invalidates the handle.
func (e *Engine) Close(ctx context.Context) error {
	e.closed = true
	return nil
}

func (e *Engine) compile(source string) (*starlarkLib.Program, error) {
	if source == "" {
		return nil, ErrContentEmpty
	}

	// Allow reassignment of the globals injected at eval time
	opts := &syntax.FileOptions{GlobalReassign: true}

	f, err := opts.Parse(e.name, []byte(source), 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}

	predeclared := make(starlarkLib.StringDict, len(e.vars))
	for name := range e.vars {
		predeclared[name] = starlarkLib.None
	}

	prog, err := starlarkLib.FileProgram(f, predeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return prog, nil
}

func (e *Engine) run(ctx context.Context, prog *starlarkLib.Program) (any, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	predeclared := make(starlarkLib.StringDict, len(e.vars))
	for name, value := range e.vars {
		predeclared[name] = toStarlarkValue(value)
	}

	thread := &starlarkLib.Thread{
		Name: e.name,
		Print: func(thread *starlarkLib.Thread, msg string) {
			e.logger.InfoContext(ctx, msg, "starlark-thread", thread.Name)
		},
	}

	// Propagate context cancellation into the interpreter
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	finalGlobals, err := prog.Init(thread, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}

	// Scripts conventionally assign their output to "result"; the "_" global
	// holds the last evaluated expression as a fallback.
	mainVal, ok := finalGlobals["result"]
	if !ok || mainVal == starlarkLib.None {
		if underscore, found := finalGlobals["_"]; found {
			mainVal = underscore
		}
	}
	if mainVal == nil {
		return nil, nil
	}

	e.logger.Debug("execution complete", "resultType", mainVal.Type())
	return fromStarlarkValue(mainVal)
}

// compiledProgram is the reusable compiled form of a Starlark script, bound to
// the engine that compiled it.
type compiledProgram struct {
	engine *Engine
	prog   *starlarkLib.Program
}

// Eval implements platform.Compiled.
func (c *compiledProgram) Eval(ctx context.Context) (any, error) {
	return c.engine.run(ctx, c.prog)
}
