package repositories

import "fmt"

// StoreErrorCode enumerates backend-independent persistence failure causes.
type StoreErrorCode string

const (
	StoreErrorNotFound    StoreErrorCode = "not_found"
	StoreErrorConflict    StoreErrorCode = "conflict"
	StoreErrorUnavailable StoreErrorCode = "unavailable"
	StoreErrorUnknown     StoreErrorCode = "unknown"
)

// StoreError is the RepositoryError used by non-Firestore backends.
type StoreError struct {
	Op      string
	Code    StoreErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*StoreError)(nil)

// NewStoreError constructs a typed store error.
func NewStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{Op: op, Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Code == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Code == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }
