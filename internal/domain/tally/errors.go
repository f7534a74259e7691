package tally

import "errors"

var (
	ErrNegativeCount = errors.New("tally counter would go negative")
	ErrInvalidDelta  = errors.New("fact delta must be +1 or -1")
)
