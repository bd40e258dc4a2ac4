package handlers

import (
	"math"
	"strings"
	"sync"
	"time"
)

// attemptWindow counts payment attempts per order reference in fixed windows. A nil
// *attemptWindow admits everything.
type attemptWindow struct {
	max    int
	length time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*attemptBucket
}

type attemptBucket struct {
	used    int
	expires time.Time
}

func newAttemptWindow(max int, length time.Duration, now func() time.Time) *attemptWindow {
	if max <= 0 || length <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &attemptWindow{max: max, length: length, now: now, buckets: map[string]*attemptBucket{}}
}

// take records one attempt for reference. When the window is exhausted it reports false and
// how long until the window resets. References compare case-insensitively.
func (a *attemptWindow) take(reference string) (time.Duration, bool) {
	if a == nil {
		return 0, true
	}
	key := strings.ToUpper(strings.TrimSpace(reference))
	at := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.buckets[key]
	if b == nil || !at.Before(b.expires) {
		a.evict(at)
		a.buckets[key] = &attemptBucket{used: 1, expires: at.Add(a.length)}
		return 0, true
	}
	if b.used < a.max {
		b.used++
		return 0, true
	}
	return b.expires.Sub(at), false
}

func (a *attemptWindow) evict(at time.Time) {
	for key, b := range a.buckets {
		if !at.Before(b.expires) {
			delete(a.buckets, key)
		}
	}
}

// retryAfterSeconds rounds wait up to whole seconds, never below one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
