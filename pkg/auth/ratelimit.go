package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter admits or rejects an authenticated caller's request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// RateLimitError is returned when a caller exhausted its window. It
// matches ErrTooManyRequests.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrTooManyRequests, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrTooManyRequests }

// Limiter is a fixed one-minute window limiter keyed by subject and tier.
type Limiter struct {
	defaultRPM int
	tiers      map[string]int

	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewLimiter creates a Limiter. tiers maps a service tier to requests per
// minute; callers of other tiers get defaultRPM. A limit <= 0 is unlimited.
func NewLimiter(defaultRPM int, tiers map[string]int) *Limiter {
	return &Limiter{
		defaultRPM: defaultRPM,
		tiers:      tiers,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow counts the request against the caller's window.
func (l *Limiter) Allow(_ context.Context, id *Identity) error {
	tier := id.ServiceTier
	if tier == "" {
		tier = "default"
	}
	rpm := l.defaultRPM
	if n, ok := l.tiers[tier]; ok {
		rpm = n
	}
	if rpm <= 0 {
		return nil
	}

	key := id.Subject + "\x00" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &window{start: now, count: 1}
		l.sweep(now)
		return nil
	}
	if w.count >= rpm {
		return &RateLimitError{RetryAfter: w.start.Add(time.Minute).Sub(now)}
	}
	w.count++
	return nil
}

// sweep drops expired windows once the map grows. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}
