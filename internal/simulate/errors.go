package simulate

import "errors"

var (
	ErrInvalidConfig   = errors.New("invalid simulation config")
	ErrUnhealthy       = errors.New("service is not healthy")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrInconsistent    = errors.New("service state is inconsistent")
)
