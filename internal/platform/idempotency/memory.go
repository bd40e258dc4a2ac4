package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps keys in process memory. Used for local runs and the Postgres backend.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	existing, found := s.entries[id]
	outcome, entry, write, err := resolveClaim(existing, found, key, fingerprint, now.UTC(), ttl)
	if err != nil {
		return 0, Entry{}, err
	}
	if write {
		s.entries[id] = entry
	}
	return outcome, entry, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Captured, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	entry, found := s.entries[id]
	if found && entry.Fingerprint != fingerprint {
		return ErrKeyReused
	}
	if !found {
		entry = newInFlight(key, fingerprint, now, ttl)
	}
	entry.State = StateCompleted
	entry.Status = resp.Status
	entry.Header = storableHeader(resp.Header)
	entry.Body = append([]byte(nil), resp.Body...)
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID(key))
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if entry.expired(now.UTC()) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}
