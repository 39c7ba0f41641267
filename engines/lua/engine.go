// Package lua provides a transformation engine backed by gopher-lua. Each
// engine handle owns one LState; scripts are loaded into a reusable function
// once and called per evaluation. A closed LState surfaces as
// platform.ErrContextClosed so callers can recreate the engine.
package lua

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	luaLib "github.com/yuin/gopher-lua"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
)

// Engine implements platform.Engine and platform.Compiler for Lua scripts.
// It is not safe for concurrent use; callers serialize access per handle.
type Engine struct {
	name  string
	state *luaLib.LState
	// names bound via SetVar, so UnsetVar only clears what was injected
	bound []string

	logHandler slog.Handler
	logger     *slog.Logger
}

// Factory is an engines.Factory creating Lua engine handles.
func Factory(handler slog.Handler, engineName string) (platform.Engine, error) {
	return New(handler, engineName), nil
}

// New creates a Lua engine handle with a fresh LState.
func New(handler slog.Handler, engineName string) *Engine {
	handler, logger := helpers.SetupLogger(handler, "lua", "Engine")

	return &Engine{
		name:       engineName,
		state:      luaLib.NewState(),
		logHandler: handler,
		logger:     logger.With("engineName", engineName),
	}
}

func (e *Engine) String() string {
	return "lua.Engine"
}

// SetVar implements platform.Engine, binding the value as a Lua global.
func (e *Engine) SetVar(name string, value any) {
	if e.state.IsClosed() {
		return
	}
	e.state.SetGlobal(name, toLValue(value))
	if !slices.Contains(e.bound, name) {
		e.bound = append(e.bound, name)
	}
}

// UnsetVar implements platform.Engine.
func (e *Engine) UnsetVar(name string) {
	if e.state.IsClosed() {
		return
	}
	e.state.SetGlobal(name, luaLib.LNil)
	e.bound = slices.DeleteFunc(e.bound, func(b string) bool { return b == name })
}

// Compile implements platform.Compiler, loading the source into a reusable
// Lua function.
func (e *Engine) Compile(ctx context.Context, source string) (platform.Compiled, error) {
	if e.state.IsClosed() {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}
	if source == "" {
		return nil, ErrContentEmpty
	}

	fn, err := e.state.LoadString(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return &compiledChunk{engine: e, fn: fn}, nil
}

// Eval implements platform.Engine, loading and calling the source in one step.
func (e *Engine) Eval(ctx context.Context, source string) (any, error) {
	compiled, err := e.Compile(ctx, source)
	if err != nil {
		return nil, err
	}
	return compiled.Eval(ctx)
}

// Close implements platform.Engine, closing the LState. Closing twice is a
// no-op.
func (e *Engine) Close(ctx context.Context) error {
	if e.state.IsClosed() {
		return nil
	}
	e.state.Close()
	return nil
}

func (e *Engine) call(ctx context.Context, fn *luaLib.LFunction) (any, error) {
	if e.state.IsClosed() {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	// Propagate deadlines and cancellation into the VM
	e.state.SetContext(ctx)

	e.state.Push(fn)
	if err := e.state.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("lua execution error: %w", err)
	}

	ret := e.state.Get(-1)
	e.state.Pop(1)

	if ret == luaLib.LNil {
		return nil, nil
	}

	e.logger.Debug("execution complete", "resultType", ret.Type().String())
	return fromLValue(ret), nil
}

// compiledChunk is the reusable loaded form of a Lua script, bound to the
// LState that loaded it.
type compiledChunk struct {
	engine *Engine
	fn     *luaLib.LFunction
}

// Eval implements platform.Compiled.
func (c *compiledChunk) Eval(ctx context.Context) (any, error) {
	return c.engine.call(ctx, c.fn)
}

// toLValue converts a Go value into its Lua representation. Values without a
// native mapping are stringified.
func toLValue(v any) luaLib.LValue {
	switch v := v.(type) {
	case nil:
		return luaLib.LNil
	case bool:
		return luaLib.LBool(v)
	case int:
		return luaLib.LNumber(v)
	case int64:
		return luaLib.LNumber(v)
	case float64:
		return luaLib.LNumber(v)
	case string:
		return luaLib.LString(v)
	default:
		return luaLib.LString(fmt.Sprint(v))
	}
}

// fromLValue converts a Lua value to a Go any value.
func fromLValue(v luaLib.LValue) any {
	switch v := v.(type) {
	case *luaLib.LNilType:
		return nil
	case luaLib.LBool:
		return bool(v)
	case luaLib.LNumber:
		return float64(v)
	case luaLib.LString:
		return string(v)
	default:
		return v.String()
	}
}
