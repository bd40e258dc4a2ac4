package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type failure uint8

const (
	failureOther failure = iota
	failureMissing
	failureContention
	failureOutage
)

// failures maps gRPC codes onto the categories services branch on. Codes not listed are
// reported as plain errors.
var failures = map[codes.Code]failure{
	codes.NotFound:           failureMissing,
	codes.AlreadyExists:      failureContention,
	codes.FailedPrecondition: failureContention,
	codes.Aborted:            failureContention,
	codes.Unavailable:        failureOutage,
	codes.ResourceExhausted:  failureOutage,
	codes.Internal:           failureOutage,
}

// Error is the repositories.RepositoryError returned by the Firestore stores.
type Error struct {
	op    string
	cause error
	class failure
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.cause.Error()
	}
	return e.op + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) IsNotFound() bool    { return e != nil && e.class == failureMissing }
func (e *Error) IsConflict() bool    { return e != nil && e.class == failureContention }
func (e *Error) IsUnavailable() bool { return e != nil && e.class == failureOutage }

// NewConflictError reports a failed optimistic check made outside Firestore preconditions.
func NewConflictError(op string, err error) error {
	return &Error{op: op, cause: err, class: failureContention}
}

// NewNotFoundError reports a query that matched nothing.
func NewNotFoundError(op string, err error) error {
	return &Error{op: op, cause: err, class: failureMissing}
}

// WrapError labels err with op and a failure category. Cancellation surfaces as the plain
// context error so callers can tell it apart from store failures.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	code := status.Code(err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case code == codes.Canceled:
		return context.Canceled
	case code == codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, cause: err, class: failures[code]}
}
