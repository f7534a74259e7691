package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("fact not found")
	ErrDuplicateTxn     = errors.New("transaction already bound to a fact")
	ErrDuplicateFact    = errors.New("fact id already stored")
	ErrAlreadyRetracted = errors.New("fact already retracted")
	ErrClosureExists    = errors.New("subcategory already closed")
	ErrClosed           = errors.New("store closed")
)
