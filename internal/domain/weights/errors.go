package weights

import "errors"

// Sentinel errors for weight table validation. Any of them is fatal at load.
var (
	ErrWeightSum      = errors.New("tier weights must sum to 1.0")
	ErrNegativeWeight = errors.New("weight must not be negative")
	ErrUnknownTier    = errors.New("unknown award tier")
	ErrUnknownRole    = errors.New("unknown voter role")
	ErrMissingTier    = errors.New("weight table missing for tier")
)
