package notify

import "errors"

var (
	ErrStopped        = errors.New("dispatcher stopped")
	ErrNotConnected   = errors.New("nats not connected")
	ErrInvalidSubject = errors.New("invalid subject")
)
