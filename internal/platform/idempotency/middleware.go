package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/httpx"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/requestctx"
)

const (
	defaultHeader = "Idempotency-Key"
	replayHeader  = "Idempotent-Replayed"
	maxKeyLength  = 255
	maxBodyBytes  = 1 << 20
)

// Options configures Middleware. Zero values fall back to defaults.
type Options struct {
	Header string
	TTL    time.Duration
	// Required rejects requests without a key instead of passing them through.
	Required bool
	Clock    func() time.Time
}

// Middleware replays the stored response when a request repeats an Idempotency-Key. Keys are
// scoped to method and path. Server errors are not remembered so the client can retry.
func Middleware(store Store, opts Options) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = defaultHeader
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(header))
			switch {
			case key == "" && opts.Required:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", header+" header is required", http.StatusBadRequest))
				return
			case key == "":
				next.ServeHTTP(w, r)
				return
			case len(key) > maxKeyLength:
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := r.Method + " " + r.URL.Path + " " + key
			fingerprint := fingerprintOf([]byte(r.Method), []byte(r.URL.Path), body)
			logger := requestctx.Logger(ctx).With(zap.String("idempotency_key", key))

			outcome, entry, err := store.Claim(ctx, scoped, fingerprint, clock(), ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key was used with a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				logger.Error("idempotency claim failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "idempotency store unavailable", http.StatusServiceUnavailable))
				return
			}

			switch outcome {
			case OutcomeReplay:
				replay(w, entry)
				return
			case OutcomeBusy:
				w.Header().Set("Retry-After", "1")
				httpx.WriteError(ctx, w, httpx.NewError("request_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
				return
			}

			rec := &capture{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				forget(ctx, store, scoped, logger)
			} else if err := store.Complete(ctx, scoped, fingerprint, rec.captured(), clock(), ttl); err != nil {
				logger.Warn("idempotency response not stored", zap.Error(err))
				forget(ctx, store, scoped, logger)
			}
			rec.flush(w)
		})
	}
}

func forget(ctx context.Context, store Store, key string, logger *zap.Logger) {
	if err := store.Abandon(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("idempotency key not released", zap.Error(err))
	}
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

// capture buffers the handler response so it can be stored before reaching the client.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

func (c *capture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *capture) captured() Captured {
	return Captured{Status: c.statusCode(), Header: c.header.Clone(), Body: c.body.Bytes()}
}

func (c *capture) flush(w http.ResponseWriter) {
	for name, values := range c.header {
		w.Header()[name] = values
	}
	w.WriteHeader(c.statusCode())
	_, _ = w.Write(c.body.Bytes())
}
