package transform

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/robbyt/go-polytransform/platform"
)

// MockEngine is a mock implementation of the platform.Engine interface.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) SetVar(name string, value any) {
	m.Called(name, value)
}

func (m *MockEngine) UnsetVar(name string) {
	m.Called(name)
}

func (m *MockEngine) Eval(ctx context.Context, source string) (any, error) {
	args := m.Called(ctx, source)
	return args.Get(0), args.Error(1)
}

func (m *MockEngine) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCompilableEngine is a MockEngine that also implements the
// platform.Compiler capability.
type MockCompilableEngine struct {
	MockEngine
}

func (m *MockCompilableEngine) Compile(ctx context.Context, source string) (platform.Compiled, error) {
	args := m.Called(ctx, source)
	compiled, ok := args.Get(0).(platform.Compiled)
	if !ok {
		return nil, args.Error(1)
	}
	return compiled, args.Error(1)
}

// MockCompiled is a mock implementation of the platform.Compiled interface.
type MockCompiled struct {
	mock.Mock
}

func (m *MockCompiled) Eval(ctx context.Context) (any, error) {
	args := m.Called(ctx)
	return args.Get(0), args.Error(1)
}

// MockProvider is a mock implementation of the platform.Provider interface.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) IsSupported(scriptType string) bool {
	args := m.Called(scriptType)
	return args.Bool(0)
}

func (m *MockProvider) CreateEngine(
	ctx context.Context,
	scriptType string,
	engineName string,
) (platform.Engine, error) {
	args := m.Called(ctx, scriptType, engineName)
	engine, ok := args.Get(0).(platform.Engine)
	if !ok {
		return nil, args.Error(1)
	}
	return engine, args.Error(1)
}

func (m *MockProvider) RemoveEngine(ctx context.Context, engineName string) {
	m.Called(ctx, engineName)
}
