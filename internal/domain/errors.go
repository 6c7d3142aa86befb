package domain

import "errors"

// Caller-facing rejections. Dirty artifact data never produces these;
// they are reserved for invalid requests.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
