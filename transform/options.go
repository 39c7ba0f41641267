package transform

import (
	"fmt"
	"log/slog"

	"github.com/robbyt/go-polytransform/tracker"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithLogHandler sets the slog handler used by the service and its cache
// management.
func WithLogHandler(handler slog.Handler) Option {
	return func(s *Service) error {
		if handler == nil {
			return fmt.Errorf("log handler is nil")
		}
		s.logHandler = handler
		return nil
	}
}

// WithMaxScriptSize overrides the maximum script body length in characters.
func WithMaxScriptSize(size int) Option {
	return func(s *Service) error {
		if size <= 0 {
			return fmt.Errorf("max script size must be positive, got %d", size)
		}
		s.maxScriptSize = size
		return nil
	}
}

// WithMaxInputSize overrides the maximum input payload length in characters.
func WithMaxInputSize(size int) Option {
	return func(s *Service) error {
		if size <= 0 {
			return fmt.Errorf("max input size must be positive, got %d", size)
		}
		s.maxInputSize = size
		return nil
	}
}

// WithEngineNamePrefix overrides the prefix qualifying engine names derived
// from script identifiers.
func WithEngineNamePrefix(prefix string) Option {
	return func(s *Service) error {
		if prefix == "" {
			return fmt.Errorf("engine name prefix must not be empty")
		}
		s.engineNamePrefix = prefix
		return nil
	}
}

// WithDependencyTracker subscribes the service to dependency-change events so
// cached scripts are invalidated when their underlying sources change.
func WithDependencyTracker(t tracker.Tracker) Option {
	return func(s *Service) error {
		if t == nil {
			return fmt.Errorf("dependency tracker is nil")
		}
		s.tracker = t
		return nil
	}
}
