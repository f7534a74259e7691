package queue

import "errors"

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
