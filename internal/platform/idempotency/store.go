package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a stored order response can be replayed.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a stored key.
type State string

const (
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
)

// Outcome tells the middleware what to do after claiming a key.
type Outcome int

const (
	// OutcomeProceed means the caller owns the key and must run the handler.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a finished response exists for the same request.
	OutcomeReplay
	// OutcomeBusy means another request holds the key right now.
	OutcomeBusy
)

// Entry is the persisted view of a key.
type Entry struct {
	Key         string
	Fingerprint string
	State       State
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Captured is a handler response ready to be stored.
type Captured struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store claims keys and remembers responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error)
	Complete(ctx context.Context, key, fingerprint string, resp Captured, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrKeyReused is returned when a key arrives with a different request body or route.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func fingerprintOf(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// storableHeader drops hop-by-hop and per-response headers before persisting.
func storableHeader(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer", "x-request-id":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func newInFlight(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StateInFlight,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// resolveClaim decides the outcome for an existing entry; found=false means the key is free.
func resolveClaim(existing Entry, found bool, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, bool, error) {
	if !found || existing.expired(now) {
		return OutcomeProceed, newInFlight(key, fingerprint, now, ttl), true, nil
	}
	if existing.Fingerprint != fingerprint {
		return 0, Entry{}, false, ErrKeyReused
	}
	if existing.State == StateCompleted {
		return OutcomeReplay, existing, false, nil
	}
	return OutcomeBusy, existing, false, nil
}
