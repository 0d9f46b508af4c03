package orderindex

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is the root of every caller contract violation.
	ErrInvalidRange = errors.New("invalid order range")

	// ErrStorageUnavailable is matched by every error coming from the store.
	ErrStorageUnavailable = errors.New("order storage unavailable")

	// ErrRebalanceExhausted is returned when no window up to MaxWindow can be
	// respaced without reaching the next untouched key.
	ErrRebalanceExhausted = fmt.Errorf("%w: rebalance window exhausted", ErrInvalidRange)

	// ErrUnknownItem is returned when the moved item is not in the window.
	ErrUnknownItem = fmt.Errorf("%w: item not in window", ErrInvalidRange)

	// ErrKeyOverflow is returned when a key would leave the int64 range.
	ErrKeyOverflow = fmt.Errorf("%w: key space overflow", ErrInvalidRange)
)

// RangeError reports a before/after pair that does not describe a gap.
type RangeError struct {
	Op     string
	Before Key
	After  Key
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: invalid range (before=%d, after=%d)", e.Op, e.Before, e.After)
}

// Unwrap returns ErrInvalidRange.
func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// TargetError reports a move target outside the window.
type TargetError struct {
	Target int
	Max    int
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("move target %d outside [0, %d]", e.Target, e.Max)
}

// Unwrap returns ErrInvalidRange.
func (e *TargetError) Unwrap() error { return ErrInvalidRange }

// StorageError wraps a store failure. It matches both ErrStorageUnavailable
// and the underlying error.
type StorageError struct {
	Op    string
	Scope string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s (scope %s): %v", e.Op, e.Scope, e.Err)
}

// Unwrap returns ErrStorageUnavailable and the store error.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

func storageErr(op, scope string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Scope: scope, Err: err}
}

// IsRetryable reports whether the whole operation may be retried with fresh
// keys. Storage failures are retryable; contract violations are not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
