package risor

import "errors"

var (
	ErrContentEmpty  = errors.New("risor script content is empty")
	ErrCompileFailed = errors.New("risor script compile error")
)
