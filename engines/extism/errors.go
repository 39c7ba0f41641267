package extism

import "errors"

var (
	ErrContentEmpty       = errors.New("wasm content is empty")
	ErrInvalidBinary      = errors.New("wasm content is not valid base64")
	ErrCompileFailed      = errors.New("wasm module compile error")
	ErrEntryPointNotFound = errors.New("entry point function not found in wasm module")
)
