// Package engines maps script type tags to engine factories and tracks the
// live engines it hands out. The factory table is resolved once at startup;
// no reflection or per-call lookup is involved.
package engines

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
)

// Script type tags for the engines shipped with this module.
const (
	TypeRisor    = "risor"
	TypeStarlark = "starlark"
	TypeLua      = "lua"
	TypeExtism   = "extism"
)

// Factory creates a new engine handle under the given name.
type Factory func(handler slog.Handler, engineName string) (platform.Engine, error)

// Provider implements platform.Provider over a startup-resolved table of
// engine factories. Engines created through it are tracked by name so that
// RemoveEngine can close them later.
type Provider struct {
	factories map[string]Factory

	mu      sync.Mutex
	engines map[string]platform.Engine

	logHandler slog.Handler
	logger     *slog.Logger
}

// NewProvider creates a Provider from a script-type → factory table. Type tags
// are matched case-insensitively.
func NewProvider(handler slog.Handler, factories map[string]Factory) *Provider {
	handler, logger := helpers.SetupLogger(handler, "engines", "Provider")

	normalized := make(map[string]Factory, len(factories))
	for tag, f := range factories {
		normalized[strings.ToLower(tag)] = f
	}

	return &Provider{
		factories:  normalized,
		engines:    make(map[string]platform.Engine),
		logHandler: handler,
		logger:     logger,
	}
}

func (p *Provider) String() string {
	return "engines.Provider"
}

// IsSupported implements platform.Provider.
func (p *Provider) IsSupported(scriptType string) bool {
	_, ok := p.factories[strings.ToLower(scriptType)]
	return ok
}

// CreateEngine implements platform.Provider.
func (p *Provider) CreateEngine(
	ctx context.Context,
	scriptType string,
	engineName string,
) (platform.Engine, error) {
	factory, ok := p.factories[strings.ToLower(scriptType)]
	if !ok {
		return nil, fmt.Errorf("no engine factory registered for script type %q", scriptType)
	}

	engine, err := factory(p.logHandler, engineName)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine %q: %w", scriptType, engineName, err)
	}

	p.mu.Lock()
	if previous, exists := p.engines[engineName]; exists {
		// A fresh engine under a reused name supersedes the old handle.
		if closeErr := previous.Close(ctx); closeErr != nil {
			p.logger.Warn("failed to close superseded engine", "engineName", engineName, "error", closeErr)
		}
	}
	p.engines[engineName] = engine
	p.mu.Unlock()

	p.logger.Debug("engine created", "scriptType", scriptType, "engineName", engineName)
	return engine, nil
}

// RemoveEngine implements platform.Provider. Close failures are logged, not
// returned; removal is best effort.
func (p *Provider) RemoveEngine(ctx context.Context, engineName string) {
	p.mu.Lock()
	engine, ok := p.engines[engineName]
	if ok {
		delete(p.engines, engineName)
	}
	p.mu.Unlock()

	if !ok {
		return
	}

	if err := engine.Close(ctx); err != nil {
		p.logger.Warn("failed to close engine", "engineName", engineName, "error", err)
		return
	}
	p.logger.Debug("engine removed", "engineName", engineName)
}

// Shutdown closes every engine still tracked by the provider.
func (p *Provider) Shutdown(ctx context.Context) {
	p.mu.Lock()
	engines := p.engines
	p.engines = make(map[string]platform.Engine)
	p.mu.Unlock()

	for name, engine := range engines {
		if err := engine.Close(ctx); err != nil {
			p.logger.Warn("failed to close engine during shutdown", "engineName", name, "error", err)
		}
	}
}
