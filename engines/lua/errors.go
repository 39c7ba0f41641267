package lua

import "errors"

var (
	ErrContentEmpty = errors.New("lua script content is empty")
	ErrLoadFailed   = errors.New("lua script load error")
)
