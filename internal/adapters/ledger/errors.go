package ledger

import (
	"errors"
	"fmt"
)

// ErrRejected is matched by every definitive refusal from the ledger.
var ErrRejected = errors.New("ledger rejected transaction")

var (
	ErrUnknownTransaction = fmt.Errorf("%w: unknown transaction", ErrRejected)
	ErrInsufficientFunds  = fmt.Errorf("%w: insufficient funds", ErrRejected)
	ErrPurposeMismatch    = fmt.Errorf("%w: purpose mismatch", ErrRejected)

	// ErrUnavailable is transient: the ledger could not answer in time.
	ErrUnavailable = errors.New("ledger unavailable")
)
