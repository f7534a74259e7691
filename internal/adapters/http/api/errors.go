package api

import (
	"errors"
	"fmt"
)

// ErrBadRequest marks a body or path the API could not parse.
var ErrBadRequest = errors.New("bad request")

// Wrap annotates err with the failing op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind annotates err with op and a sentinel kind; both match errors.Is.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns a bare kind error for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
