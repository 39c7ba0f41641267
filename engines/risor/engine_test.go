package risor

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-polytransform/platform"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	handler := slog.NewTextHandler(os.Stdout, nil)
	engine := New(handler, "test-engine")
	t.Cleanup(func() {
		require.NoError(t, engine.Close(context.Background()))
	})
	return engine
}

func TestEvalWithBoundVars(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)
	engine.SetVar("input", "42")
	engine.SetVar("msg", "hello")

	result, err := engine.Eval(context.Background(), `input + "-" + msg`)
	require.NoError(t, err)
	require.Equal(t, "42-hello", result)
}

func TestEvalAfterUnsetVar(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)
	engine.SetVar("input", "42")
	engine.SetVar("msg", "hello")
	engine.UnsetVar("msg")

	result, err := engine.Eval(context.Background(), `input`)
	require.NoError(t, err)
	require.Equal(t, "42", result)
}

func TestCompiledScriptReuse(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)
	engine.SetVar("input", "a")

	compiled, err := engine.Compile(context.Background(), `input + "!"`)
	require.NoError(t, err)

	result, err := compiled.Eval(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a!", result)

	// Rebinding between evaluations takes effect without recompiling
	engine.SetVar("input", "b")
	result, err = compiled.Eval(context.Background())
	require.NoError(t, err)
	require.Equal(t, "b!", result)
}

func TestEvalEmptySource(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)

	_, err := engine.Eval(context.Background(), "")
	require.ErrorIs(t, err, ErrContentEmpty)
}

func TestEvalSyntaxError(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)

	_, err := engine.Eval(context.Background(), `1 +`)
	require.ErrorIs(t, err, ErrCompileFailed)
}

func TestEvalRejectsFunctionResult(t *testing.T) {
	t.Parallel()
	engine := newTestEngine(t)

	_, err := engine.Eval(context.Background(), `func() { 1 }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "function")
}

func TestClosedEngine(t *testing.T) {
	t.Parallel()
	handler := slog.NewTextHandler(os.Stdout, nil)
	engine := New(handler, "closed-engine")
	require.NoError(t, engine.Close(context.Background()))

	_, err := engine.Eval(context.Background(), `1 + 1`)
	require.ErrorIs(t, err, platform.ErrContextClosed)

	_, err = engine.Compile(context.Background(), `1 + 1`)
	require.ErrorIs(t, err, platform.ErrContextClosed)
}

func TestCompiledScriptAfterClose(t *testing.T) {
	t.Parallel()
	handler := slog.NewTextHandler(os.Stdout, nil)
	engine := New(handler, "closing-engine")

	compiled, err := engine.Compile(context.Background(), `1 + 1`)
	require.NoError(t, err)
	require.NoError(t, engine.Close(context.Background()))

	_, err = compiled.Eval(context.Background())
	require.ErrorIs(t, err, platform.ErrContextClosed)
}
