package types

import (
	"errors"
	"fmt"
)

// Sentinel kinds returned by ingest and read operations.
var (
	ErrValidation           = errors.New("validation error")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrLedgerRejected       = errors.New("ledger rejected")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrAggregateConflict    = errors.New("aggregate conflict")
	ErrNotFound             = errors.New("not found")
)

// IngestError carries the failing operation, its kind, and the underlying cause.
// errors.Is matches both Kind and Err.
type IngestError struct {
	Op   string
	Kind error
	Err  error
}

func (e *IngestError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil || e.Err == e.Kind:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *IngestError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil && e.Err != e.Kind {
		out = append(out, e.Err)
	}
	return out
}

// NewError builds an *IngestError of the given kind.
func NewError(op string, kind, err error) error {
	return &IngestError{Op: op, Kind: kind, Err: err}
}

// Validationf builds a validation error with a formatted reason.
func Validationf(op, format string, args ...any) error {
	return &IngestError{Op: op, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the sentinel kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, k := range []error{
		ErrValidation, ErrDuplicateTransaction, ErrLedgerRejected,
		ErrLedgerUnavailable, ErrAggregateConflict, ErrNotFound,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindLabel returns a short metrics label for err.
func KindLabel(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrDuplicateTransaction:
		return "duplicate"
	case ErrLedgerRejected:
		return "ledger_rejected"
	case ErrLedgerUnavailable:
		return "ledger_unavailable"
	case ErrAggregateConflict:
		return "conflict"
	case ErrNotFound:
		return "not_found"
	default:
		return "internal"
	}
}
