package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("validation_error", "missing\nfields", http.StatusBadRequest).
		WithDetails(map[string]any{"fields": []string{"items"}, "status": 999}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "validation_error" || body["message"] != "missing fields" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["status"] != float64(http.StatusBadRequest) {
		t.Fatalf("details must not override status, got %v", body["status"])
	}
	if body["request_id"] != "req-42" || body["trace_id"] != "trace-1" {
		t.Fatalf("missing correlation ids: %v", body)
	}
	if _, ok := body["fields"]; !ok {
		t.Fatalf("expected details to be merged")
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ana"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Name != "ana" {
		t.Fatalf("decode: %v %+v", err, dst)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &dst); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected empty body error, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatalf("expected type error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{} {}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatalf("expected trailing document error")
	}
}
