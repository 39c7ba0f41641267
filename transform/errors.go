package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFunction reports a function string matching neither the
	// inline nor the named grammar.
	ErrMalformedFunction = errors.New("invalid syntax for the script transformation")

	// ErrScriptTooLarge reports a script body exceeding the configured safe
	// execution limit.
	ErrScriptTooLarge = errors.New("script size exceeds safe execution limits")

	// ErrInputTooLarge reports an input payload exceeding the configured safe
	// execution limit.
	ErrInputTooLarge = errors.New("input payload is too large for script transformation")

	// ErrScriptNotFound reports that neither an inline body nor a registry
	// definition supplied script text for the identifier.
	ErrScriptNotFound = errors.New("could not get script")

	// ErrUnsupportedScriptType reports that no available engine backs the
	// configured script type.
	ErrUnsupportedScriptType = errors.New("script type is not supported by any available script engine")

	// ErrEngineCreation reports that the engine provider returned no engine.
	ErrEngineCreation = errors.New("failed to create script engine")

	// ErrEvaluation wraps an engine failure during script execution.
	ErrEvaluation = errors.New("failed to execute script")
)

// TransformationError is the typed failure surfaced by Service.Transform. It
// carries the script identifier and wraps the underlying cause, so callers can
// match sentinel errors with errors.Is.
type TransformationError struct {
	UID string
	Err error
}

func (e *TransformationError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("transformation failed: %s", e.Err)
	}
	return fmt.Sprintf("transformation failed for script %q: %s", e.UID, e.Err)
}

func (e *TransformationError) Unwrap() error {
	return e.Err
}

// newTransformationError wraps err with the offending script identifier,
// avoiding double wrapping when err already carries one.
func newTransformationError(uid string, err error) error {
	var te *TransformationError
	if errors.As(err, &te) {
		return err
	}
	return &TransformationError{UID: uid, Err: err}
}
