package httpx

import (
	"context"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// envelopeKeys are owned by the error envelope and never taken from Details.
var envelopeKeys = map[string]struct{}{
	"error":      {},
	"message":    {},
	"status":     {},
	"request_id": {},
	"trace_id":   {},
}

// Error is a client facing failure. It renders as
// {error, message, status, request_id, trace_id} plus any extra detail keys.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	return Error{
		Code:    singleLine(code, maxCodeLen),
		Message: singleLine(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails returns a copy of e carrying the given detail keys in addition to any it already has.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

func (e Error) statusCode() int {
	if e.Status < 400 || e.Status > 599 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func (e Error) envelope(ctx context.Context) map[string]any {
	body := make(map[string]any, len(envelopeKeys)+len(e.Details))
	for k, v := range e.Details {
		if _, owned := envelopeKeys[k]; !owned {
			body[k] = v
		}
	}
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.statusCode()
	if id := singleLine(requestctx.RequestID(ctx), maxIDLen); id != "" {
		body["request_id"] = id
	}
	if id := singleLine(requestctx.TraceID(ctx), maxIDLen); id != "" {
		body["trace_id"] = id
	}
	return body
}

// WriteError renders err with the correlation ids found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	WriteJSON(w, err.statusCode(), err.envelope(ctx))
}

// singleLine folds whitespace runs (newlines included) into single spaces and caps the result
// at limit bytes without splitting a rune.
func singleLine(value string, limit int) string {
	value = strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
