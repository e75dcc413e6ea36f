package task

import "errors"

var (
	// ErrOutputUnreadable means the encoded file could not be sized.
	ErrOutputUnreadable = errors.New("output file unreadable or empty")
	// ErrUserCancelled means the caller stopped the batch between files.
	ErrUserCancelled = errors.New("cancelled by user")
	ErrBatchNotFound = errors.New("batch not found")
	ErrQueueFull     = errors.New("batch queue is full")
)
