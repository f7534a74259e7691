package eligibility

import "errors"

var (
	ErrUnknownNominee = errors.New("nominee has no eligibility state")
	ErrNegativeCount  = errors.New("eligibility count would go negative")
	ErrInvalidRule    = errors.New("invalid eligibility rule")
)
