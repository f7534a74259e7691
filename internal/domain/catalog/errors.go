package catalog

import "errors"

var (
	ErrNotFound   = errors.New("catalog entry not found")
	ErrExists     = errors.New("catalog entry already exists elsewhere")
	ErrInvalid    = errors.New("invalid catalog entry")
	ErrTierChange = errors.New("category tier is immutable")
)
