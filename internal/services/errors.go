package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

var (
	// ErrValidation marks input that failed validation; see ValidationError for details.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrNotFound indicates the requested order or transaction does not exist.
	ErrNotFound = errors.New("checkout: not found")
	// ErrConflict indicates a concurrent write or duplicate key.
	ErrConflict = errors.New("checkout: conflict")
	// ErrPaymentFailed indicates the gateway refused or failed the payment attempt.
	ErrPaymentFailed = errors.New("checkout: payment failed")
	// ErrOrderNotPayable indicates the order status does not allow a new payment attempt.
	ErrOrderNotPayable = errors.New("checkout: order is not payable")
	// ErrPaymentUnavailable indicates the gateway could not be reached before any attempt was made.
	ErrPaymentUnavailable = errors.New("checkout: payment gateway unavailable")
	// ErrUnavailable indicates the store is temporarily unavailable.
	ErrUnavailable = errors.New("checkout: service unavailable")
	// ErrInvalidSignature indicates a webhook failed signature verification.
	ErrInvalidSignature = errors.New("checkout: invalid webhook signature")
)

// ValidationError lists every offending field. Details carries structured context such as the
// amount comparison.
type ValidationError struct {
	Message string
	Fields  []string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = "validation failed"
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type fieldErrors struct {
	fields []string
	seen   map[string]bool
}

func (f *fieldErrors) add(field string) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[field] {
		return
	}
	f.seen[field] = true
	f.fields = append(f.fields, field)
}

func (f *fieldErrors) err(message string) error {
	if len(f.fields) == 0 {
		return nil
	}
	fields := append([]string(nil), f.fields...)
	sort.Strings(fields)
	return &ValidationError{Message: message, Fields: fields}
}

// PaymentFailedError carries the gateway reason for a failed attempt.
type PaymentFailedError struct {
	Reason     string
	Kind       payments.ErrorKind
	StatusCode int
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPaymentFailed.Error(), e.Reason)
}

func (e *PaymentFailedError) Unwrap() error { return ErrPaymentFailed }

func newPaymentFailedError(gwErr *payments.GatewayError) *PaymentFailedError {
	if gwErr == nil {
		return &PaymentFailedError{Reason: "unknown gateway failure"}
	}
	return &PaymentFailedError{Reason: gwErr.Message, Kind: gwErr.Kind, StatusCode: gwErr.StatusCode}
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}
