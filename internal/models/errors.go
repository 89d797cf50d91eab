package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ValidationError rejects a request before any mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a persistence failure. Retryable errors are retried by the
// storage layer before they reach callers.
type StorageError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConsistencyAnomaly reports persisted pair state that violates an invariant
type ConsistencyAnomaly struct {
	Key    PairKey
	Reason string
}

func (e *ConsistencyAnomaly) Error() string {
	return fmt.Sprintf("consistency anomaly on pair %s: %s", e.Key, e.Reason)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsAnomaly reports whether err is a ConsistencyAnomaly
func IsAnomaly(err error) bool {
	var a *ConsistencyAnomaly
	return errors.As(err, &a)
}

// IsStorage reports whether err is a StorageError
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}
