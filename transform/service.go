// Package transform implements the script transformation cache: parsing of
// compact function strings, a per-identifier cache of loaded and compiled
// scripts, and the evaluation protocol that reuses prepared engines across
// calls and rebuilds them when scripts or engines become stale.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/robbyt/go-polytransform/internal/helpers"
	"github.com/robbyt/go-polytransform/platform"
	"github.com/robbyt/go-polytransform/registry"
	"github.com/robbyt/go-polytransform/tracker"
)

const (
	defaultMaxScriptSize    = 200_000
	defaultMaxInputSize     = 200_000
	defaultEngineNamePrefix = "transformation-script-"

	// inputVar is the reserved variable carrying the request input text.
	inputVar = "input"
)

// ParameterOption is a selectable named script exposed for configuration UIs.
type ParameterOption struct {
	Value string
	Label string
}

// Service executes script transformations with per-identifier caching of
// loaded script text, engine handles, and compiled forms. It is safe for
// concurrent use; evaluation is serialized per script identifier only.
//
// The service subscribes itself to registry changes (and optionally to a
// dependency tracker) at construction; Close deregisters and disposes all
// cached state.
type Service struct {
	scriptType       string
	engineNamePrefix string
	maxScriptSize    int
	maxInputSize     int

	registry registry.Registry
	provider platform.Provider
	tracker  tracker.Tracker
	cache    *scriptCache

	logHandler slog.Handler
	logger     *slog.Logger
}

// NewService creates a transformation service for the given script type,
// resolving named scripts through reg and engines through provider.
func NewService(
	scriptType string,
	reg registry.Registry,
	provider platform.Provider,
	opts ...Option,
) (*Service, error) {
	if scriptType == "" {
		return nil, fmt.Errorf("script type must not be empty")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("engine provider is nil")
	}

	s := &Service{
		scriptType:       scriptType,
		engineNamePrefix: defaultEngineNamePrefix,
		maxScriptSize:    defaultMaxScriptSize,
		maxInputSize:     defaultMaxInputSize,
		registry:         reg,
		provider:         provider,
		cache:            newScriptCache(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("error applying option: %w", err)
		}
	}

	s.logHandler, s.logger = helpers.SetupLogger(s.logHandler, "transform", "Service")
	s.logger = s.logger.With("scriptType", scriptType)

	if watchable, ok := reg.(registry.Watchable); ok {
		watchable.AddChangeListener(s)
	}
	if s.tracker != nil {
		s.tracker.AddListener(s)
	}

	return s, nil
}

func (s *Service) String() string {
	return fmt.Sprintf("transform.Service{scriptType: %s}", s.scriptType)
}

// Transform resolves the script named by function, evaluates it with input
// bound as the reserved "input" variable, and returns the result's string
// form. A nil result means the script explicitly produced no value. Failures
// are returned as a *TransformationError wrapping one of this package's
// sentinel errors.
func (s *Service) Transform(ctx context.Context, function string, input string) (*string, error) {
	spec, err := parseFuncSpec(function, s.maxScriptSize)
	if err != nil {
		return nil, newTransformationError("", err)
	}

	result, err := s.transformWithSpec(ctx, spec, input, false)
	if err != nil {
		return nil, newTransformationError(spec.uid, err)
	}
	return result, nil
}

// transformWithSpec runs one transformation attempt against the cached record
// for spec.uid. A stale engine context triggers eviction and exactly one
// retry; the retried flag bounds the recursion.
func (s *Service) transformWithSpec(
	ctx context.Context,
	spec *funcSpec,
	input string,
	retried bool,
) (*string, error) {
	record := s.cache.getOrCreate(spec.uid)

	record.mu.Lock()
	result, err := s.evaluateLocked(ctx, spec, input, record)
	if err != nil && errors.Is(err, platform.ErrContextClosed) && !retried {
		// The engine context was invalidated out-of-band. Rebuild the record
		// from scratch and retry the whole call once.
		s.logger.Warn(
			"Script engine context is already closed, this should not happen. Recreating script engine.",
			"uid", spec.uid,
		)
		s.cache.remove(spec.uid)
		s.disposeLocked(record)
		record.mu.Unlock()
		return s.transformWithSpec(ctx, spec, input, true)
	}
	record.mu.Unlock()

	return result, err
}

// evaluateLocked performs the load/compile/evaluate sequence for one call.
// The caller holds record.mu.
func (s *Service) evaluateLocked(
	ctx context.Context,
	spec *funcSpec,
	input string,
	record *scriptRecord,
) (*string, error) {
	if err := s.ensureScriptLoaded(spec, record); err != nil {
		return nil, err
	}
	if err := s.ensureScriptTypeSupported(spec.uid, record); err != nil {
		return nil, err
	}
	if err := s.ensureEngine(ctx, spec.uid, record); err != nil {
		return nil, err
	}

	if len(input) > s.maxInputSize {
		return nil, fmt.Errorf("%w: input is %d characters, maximum is %d",
			ErrInputTooLarge, len(input), s.maxInputSize)
	}

	engine := record.engine

	// Make the request input available to the script
	engine.SetVar(inputVar, input)

	injected := s.injectParams(engine, spec.uid, spec.rawParams)
	defer s.removeInjectedParams(engine, injected)

	// Compile here, after variable binding, so that engines which snapshot
	// bindings at compile time see them.
	if record.compiled == nil {
		if compiler, ok := engine.(platform.Compiler); ok {
			compiled, err := compiler.Compile(ctx, record.script)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
			}
			record.compiled = compiled
		}
	}

	var result any
	var err error
	if record.compiled != nil {
		result, err = record.compiled.Eval(ctx)
	} else {
		result, err = engine.Eval(ctx, record.script)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	if result == nil {
		return nil, nil
	}
	str := stringify(result)
	return &str, nil
}

// ensureScriptLoaded resolves the script text onto the record, from the
// inline body or the registry. The text is stored at most once.
func (s *Service) ensureScriptLoaded(spec *funcSpec, record *scriptRecord) error {
	if record.loaded() {
		return nil
	}

	script := spec.inlineScript
	if script == "" {
		if t := s.registry.Get(spec.uid); t != nil {
			script = t.Function
		}
	}

	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%w for UID %q", ErrScriptNotFound, spec.uid)
	}
	if len(script) > s.maxScriptSize {
		return fmt.Errorf("%w: script is %d characters, maximum is %d",
			ErrScriptTooLarge, len(script), s.maxScriptSize)
	}

	record.setScript(script)
	return nil
}

// ensureScriptTypeSupported verifies the configured script type is still
// backed by an engine. If the language has been removed, the record is
// disposed so nothing stale survives.
func (s *Service) ensureScriptTypeSupported(uid string, record *scriptRecord) error {
	if s.provider.IsSupported(s.scriptType) {
		return nil
	}

	s.cache.remove(uid)
	s.disposeLocked(record)
	return fmt.Errorf("%w: %q", ErrUnsupportedScriptType, s.scriptType)
}

// ensureEngine obtains the record's engine handle, creating one under an
// identifier-qualified name so engines are never shared across scripts.
func (s *Service) ensureEngine(ctx context.Context, uid string, record *scriptRecord) error {
	if record.engine != nil {
		return nil
	}

	engineName := s.engineNamePrefix + uid
	engine, err := s.provider.CreateEngine(ctx, s.scriptType, engineName)
	if err != nil {
		return fmt.Errorf("%w for UID %q: %w", ErrEngineCreation, uid, err)
	}
	if engine == nil {
		return fmt.Errorf("%w for UID %q", ErrEngineCreation, uid)
	}

	record.engine = engine
	record.engineName = engineName
	return nil
}

// injectParams binds each decoded key=value pair as an execution-scoped
// variable and returns the injected keys. Pairs that do not split into
// exactly two parts are skipped with a diagnostic, not fatal.
func (s *Service) injectParams(engine platform.Engine, uid string, rawParams string) []string {
	if rawParams == "" {
		return nil
	}

	var injected []string
	for _, param := range strings.Split(rawParams, "&") {
		parts := strings.Split(param, "=")
		if len(parts) != 2 {
			s.logger.Warn("Parameter does not consist of two parts, skipping.",
				"param", param, "uid", uid)
			continue
		}

		key, err := url.QueryUnescape(parts[0])
		if err != nil {
			s.logger.Warn("Failed to decode parameter key, skipping.",
				"param", param, "uid", uid, "error", err)
			continue
		}
		value, err := url.QueryUnescape(parts[1])
		if err != nil {
			s.logger.Warn("Failed to decode parameter value, skipping.",
				"param", param, "uid", uid, "error", err)
			continue
		}

		engine.SetVar(key, value)
		injected = append(injected, key)
	}
	return injected
}

// removeInjectedParams unbinds the keys injected for one evaluation so no
// call leaks parameter bindings into the next. The reserved input variable is
// not removed.
func (s *Service) removeInjectedParams(engine platform.Engine, injected []string) {
	for _, key := range injected {
		engine.UnsetVar(key)
	}
}

// ParameterOptions lists the registry's named scripts of the configured type,
// for configuration UIs offering a script picker.
func (s *Service) ParameterOptions() []ParameterOption {
	transformations := s.registry.OfType(strings.ToLower(s.scriptType))

	opts := make([]ParameterOption, 0, len(transformations))
	for _, t := range transformations {
		opts = append(opts, ParameterOption{Value: t.UID, Label: t.Label})
	}
	return opts
}

// Added implements registry.ChangeListener.
func (s *Service) Added(t registry.Transformation) {
	s.clearCache(t.UID)
}

// Updated implements registry.ChangeListener.
func (s *Service) Updated(old registry.Transformation, t registry.Transformation) {
	s.clearCache(t.UID)
}

// Removed implements registry.ChangeListener.
func (s *Service) Removed(t registry.Transformation) {
	s.clearCache(t.UID)
}

// OnDependencyChange implements tracker.Listener. The scriptID is the
// engine-qualified name; the prefix is stripped to recover the cache key.
func (s *Service) OnDependencyChange(scriptID string) {
	uid := strings.TrimPrefix(scriptID, s.engineNamePrefix)
	if s.cache.get(uid) == nil {
		return
	}
	s.logger.Debug("Clearing script cache after dependency change", "uid", uid)
	s.clearCache(uid)
}

// Close deregisters the service from its event sources and disposes every
// cached record. Engines still evaluating finish first; disposal waits on
// each record's lock.
func (s *Service) Close(ctx context.Context) error {
	if watchable, ok := s.registry.(registry.Watchable); ok {
		watchable.RemoveChangeListener(s)
	}
	if s.tracker != nil {
		s.tracker.RemoveListener(s)
	}

	for _, record := range s.cache.drainAll() {
		s.disposeRecord(record)
	}
	return nil
}

// clearCache evicts the record for uid and disposes it in the background.
// The cache entry disappears immediately, so the next call rebuilds; the
// engine itself is released only once any in-flight evaluation completes.
func (s *Service) clearCache(uid string) {
	record := s.cache.remove(uid)
	if record == nil {
		return
	}
	go s.disposeRecord(record)
}

// disposeRecord waits for any in-flight evaluation, then releases the
// record's engine and compiled form.
func (s *Service) disposeRecord(record *scriptRecord) {
	record.mu.Lock()
	defer record.mu.Unlock()
	s.disposeLocked(record)
}

// disposeLocked releases the record's engine and compiled form. The caller
// holds record.mu. Engine release is best effort; the provider logs failures.
func (s *Service) disposeLocked(record *scriptRecord) {
	if record.engine != nil {
		s.provider.RemoveEngine(context.Background(), record.engineName)
	}
	record.engine = nil
	record.compiled = nil
}

// stringify renders a script result in its string form.
func stringify(v any) string {
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}
