package requestctx

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != noopLogger {
		t.Fatalf("expected noop logger")
	}
	if HasLogger(context.Background()) {
		t.Fatalf("expected no logger on empty context")
	}
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	if Logger(ctx) != logger || !HasLogger(ctx) {
		t.Fatalf("expected stored logger")
	}
}

func TestTraceAndActor(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", ProjectID: "shop"})
	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
	if TraceID(context.Background()) != "" {
		t.Fatalf("expected empty trace id")
	}
	ctx = WithActor(ctx, "staff-1")
	if Actor(ctx) != "staff-1" {
		t.Fatalf("unexpected actor %q", Actor(ctx))
	}
}

func TestRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	if RequestID(ctx) != "req-1" {
		t.Fatalf("unexpected request id %q", RequestID(ctx))
	}
}
