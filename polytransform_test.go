package polytransform

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-polytransform/registry"
	"github.com/robbyt/go-polytransform/transform"
)

func testHandler() slog.Handler {
	return slog.NewTextHandler(os.Stdout, nil)
}

func TestDefaultFactories(t *testing.T) {
	t.Parallel()
	factories := DefaultFactories()
	require.Len(t, factories, 4)
	for _, tag := range []string{"risor", "starlark", "lua", "extism"} {
		require.Contains(t, factories, tag)
	}
}

func TestLuaServiceEndToEnd(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemoryRegistry(testHandler())
	reg.Add(registry.Transformation{
		UID:      "greet.lua",
		Label:    "Greeter",
		Type:     "lua",
		Function: `return "Hello " .. input`,
	})

	svc, err := NewLuaService(testHandler(), reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})

	t.Run("named script", func(t *testing.T) {
		result, err := svc.Transform(context.Background(), "greet.lua", "world")
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, "Hello world", *result)
	})

	t.Run("inline script", func(t *testing.T) {
		result, err := svc.Transform(context.Background(), `|return input .. "!"`, "world")
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, "world!", *result)
	})

	t.Run("script with params", func(t *testing.T) {
		reg.Add(registry.Transformation{
			UID:      "suffix.lua",
			Type:     "lua",
			Function: `return input .. "-" .. msg`,
		})

		result, err := svc.Transform(context.Background(), "suffix.lua?msg=hi", "42")
		require.NoError(t, err)
		require.NotNil(t, result)
		require.Equal(t, "42-hi", *result)
	})

	t.Run("unknown script", func(t *testing.T) {
		_, err := svc.Transform(context.Background(), "missing.lua", "world")
		require.ErrorIs(t, err, transform.ErrScriptNotFound)
	})
}

func TestRisorServiceEndToEnd(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemoryRegistry(testHandler())
	reg.Add(registry.Transformation{
		UID:      "shout.risor",
		Type:     "risor",
		Function: `strings.to_upper(input)`,
	})

	svc, err := NewRisorService(testHandler(), reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})

	result, err := svc.Transform(context.Background(), "shout.risor", "hello")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "HELLO", *result)
}

func TestStarlarkServiceEndToEnd(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemoryRegistry(testHandler())
	reg.Add(registry.Transformation{
		UID:      "shout.star",
		Type:     "starlark",
		Function: `result = input.upper()`,
	})

	svc, err := NewStarlarkService(testHandler(), reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})

	result, err := svc.Transform(context.Background(), "shout.star", "hello")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "HELLO", *result)
}

func TestServiceRebuildsAfterRegistryUpdate(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemoryRegistry(testHandler())
	reg.Add(registry.Transformation{
		UID:      "greet.lua",
		Type:     "lua",
		Function: `return "v1:" .. input`,
	})

	svc, err := NewLuaService(testHandler(), reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})

	result, err := svc.Transform(context.Background(), "greet.lua", "x")
	require.NoError(t, err)
	require.Equal(t, "v1:x", *result)

	reg.Update(registry.Transformation{
		UID:      "greet.lua",
		Type:     "lua",
		Function: `return "v2:" .. input`,
	})

	// the replacement takes effect once the old record is evicted
	require.Eventually(t, func() bool {
		result, err := svc.Transform(context.Background(), "greet.lua", "x")
		return err == nil && result != nil && *result == "v2:x"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewServiceWithUnsupportedType(t *testing.T) {
	t.Parallel()
	reg := registry.NewMemoryRegistry(testHandler())
	reg.Add(registry.Transformation{UID: "s1", Type: "ruby", Function: "puts input"})

	svc, err := NewService(testHandler(), "ruby", reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})

	_, err = svc.Transform(context.Background(), "s1", "x")
	require.ErrorIs(t, err, transform.ErrUnsupportedScriptType)
}
