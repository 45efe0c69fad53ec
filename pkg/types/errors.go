package types

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrDuplicateAccount = errors.New("duplicate account")
	ErrEmptyInput       = errors.New("empty input")
	// ErrIndexOutOfRange means the builder and extractor disagree about the tree
	// shape. It is never recoverable.
	ErrIndexOutOfRange = errors.New("leaf index out of range")
	ErrInternal        = errors.New("internal invariant violated")
)

// RowError attaches source row context to a validation failure.
type RowError struct {
	Row     int
	Account string
	Err     error
}

func (e *RowError) Error() string {
	if e.Account == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Account, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
