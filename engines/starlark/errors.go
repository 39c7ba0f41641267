package starlark

import "errors"

var (
	ErrContentEmpty  = errors.New("starlark script content is empty")
	ErrCompileFailed = errors.New("starlark script compile error")
)
