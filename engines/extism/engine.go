// Package extism provides a transformation engine that runs WASM modules via
// the Extism SDK on the wazero runtime. The script body is the base64-encoded
// module binary; each evaluation calls the module's "transform" export with a
// JSON object holding the engine's current variable bindings.
package extism

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	extismSDK "github.com/extism/go-sdk"
	"github.com/tetratelabs/wazero"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
)

const defaultEntryPoint = "transform"

// Engine implements platform.Engine and platform.Compiler for WASM modules.
// It is not safe for concurrent use; callers serialize access per handle.
type Engine struct {
	name       string
	entryPoint string
	vars       map[string]any
	closed     bool

	// compiled plugins owned by this handle, closed with it
	plugins []*extismSDK.CompiledPlugin

	logHandler slog.Handler
	logger     *slog.Logger
}

// Factory is an engines.Factory creating Extism engine handles.
func Factory(handler slog.Handler, engineName string) (platform.Engine, error) {
	return New(handler, engineName), nil
}

// New creates an Extism engine handle with an empty variable scope.
func New(handler slog.Handler, engineName string) *Engine {
	handler, logger := helpers.SetupLogger(handler, "extism", "Engine")

	return &Engine{
		name:       engineName,
		entryPoint: defaultEntryPoint,
		vars:       make(map[string]any),
		logHandler: handler,
		logger:     logger.With("engineName", engineName),
	}
}

func (e *Engine) String() string {
	return "extism.Engine"
}

// SetVar implements platform.Engine.
func (e *Engine) SetVar(name string, value any) {
	e.vars[name] = value
}

// UnsetVar implements platform.Engine.
func (e *Engine) UnsetVar(name string) {
	delete(e.vars, name)
}

// Compile implements platform.Compiler, decoding the base64 module binary and
// compiling it once for reuse across evaluations.
func (e *Engine) Compile(ctx context.Context, source string) (platform.Compiled, error) {
	plugin, err := e.compile(ctx, source)
	if err != nil {
		return nil, err
	}
	e.plugins = append(e.plugins, plugin)
	return &compiledModule{engine: e, plugin: plugin}, nil
}

// Eval implements platform.Engine, compiling and calling the module in one
// step.
func (e *Engine) Eval(ctx context.Context, source string) (any, error) {
	plugin, err := e.compile(ctx, source)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := plugin.Close(ctx); closeErr != nil {
			e.logger.Warn("failed to close wasm plugin", "error", closeErr)
		}
	}()
	return e.call(ctx, plugin)
}

// Close implements platform.Engine, releasing every module compiled by this
// handle.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	for _, plugin := range e.plugins {
		if err := plugin.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.plugins = nil
	return firstErr
}

func (e *Engine) compile(ctx context.Context, source string) (*extismSDK.CompiledPlugin, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}
	if source == "" {
		return nil, ErrContentEmpty
	}

	wasmBytes, err := base64.StdEncoding.DecodeString(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinary, err)
	}

	manifest := extismSDK.Manifest{
		Wasm: []extismSDK.Wasm{
			extismSDK.WasmData{Data: wasmBytes},
		},
	}

	config := extismSDK.PluginConfig{
		EnableWasi:    true,
		RuntimeConfig: wazero.NewRuntimeConfig().WithCloseOnContextDone(true),
	}

	plugin, err := extismSDK.NewCompiledPlugin(ctx, manifest, config, []extismSDK.HostFunction{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	return plugin, nil
}

func (e *Engine) call(ctx context.Context, plugin *extismSDK.CompiledPlugin) (any, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %s", platform.ErrContextClosed, e.name)
	}

	instance, err := plugin.Instance(ctx, extismSDK.PluginInstanceConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create wasm instance: %w", err)
	}
	defer func() {
		if closeErr := instance.Close(ctx); closeErr != nil {
			e.logger.Warn("failed to close wasm instance", "error", closeErr)
		}
	}()

	if !instance.FunctionExists(e.entryPoint) {
		return nil, fmt.Errorf("%w: %s", ErrEntryPointNotFound, e.entryPoint)
	}

	inputJSON, err := json.Marshal(e.vars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input payload: %w", err)
	}

	exit, output, err := instance.CallWithContext(ctx, e.entryPoint, inputJSON)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("wasm execution error: %w", err)
	}
	if exit != 0 {
		return nil, fmt.Errorf("wasm function returned non-zero exit code: %d", exit)
	}
	if len(output) == 0 {
		return nil, nil
	}

	// Prefer JSON output, falling back to the raw bytes as a string
	var result any
	d := json.NewDecoder(bytes.NewReader(output))
	d.UseNumber()
	if err := d.Decode(&result); err != nil {
		result = string(output)
	}

	e.logger.Debug("execution complete")
	return result, nil
}

// compiledModule is the reusable compiled form of a WASM module, bound to the
// engine that compiled it.
type compiledModule struct {
	engine *Engine
	plugin *extismSDK.CompiledPlugin
}

// Eval implements platform.Compiled.
func (c *compiledModule) Eval(ctx context.Context) (any, error) {
	return c.engine.call(ctx, c.plugin)
}
