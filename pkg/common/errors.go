package common

import "errors"

var (
	ErrTruncatedHeader = errors.New("truncated header")
	ErrInvalidField    = errors.New("invalid header field")
	ErrCorruptArchive  = errors.New("corrupt archive payload")
	ErrPathNotFound    = errors.New("path not found")
	ErrMagicMismatch   = errors.New("unexpected magic")
)
