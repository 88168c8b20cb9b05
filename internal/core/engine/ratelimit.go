package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/greater-social/greater/internal/core"
)

const (
	DefaultMaxRequests    = 300
	DefaultWindow         = 5 * time.Minute
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = time.Minute
	DefaultMultiplier     = 2.0

	// NoRetryAfter marks a 429 that carried no usable Retry-After.
	NoRetryAfter time.Duration = -1
)

// RateLimiter enforces a fixed-window request quota per key and a hard
// backoff after the server answers 429. Keys are `instance:method:path`.
type RateLimiter struct {
	Store          RateLimitStore
	MaxRequests    int
	Window         time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Clock          func() time.Time

	mu sync.Mutex
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error
	DeleteRateLimit(ctx context.Context, key string) error
	ClearRateLimits(ctx context.Context) error
}

// NewRateLimiter returns a limiter with default quota backed by store.
// A nil store selects an in-memory store.
func NewRateLimiter(store RateLimitStore) *RateLimiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &RateLimiter{Store: store}
}

// Key builds the rate limit key for a request.
func Key(instance, method, path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.ToLower(strings.TrimSpace(instance)) + ":" + strings.ToUpper(method) + ":" + path
}

// Allow reports whether a request may be dispatched now, and how long to
// wait when it may not.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.load(ctx, key)
	if err != nil {
		return true, 0, err
	}

	now := r.now()
	r.resetExpired(state, now)

	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(now), nil
	}

	if state.RequestCount >= r.maxRequests() {
		return false, state.WindowStart.Add(r.window()).Sub(now), nil
	}

	return true, 0, nil
}

// Record counts a dispatched request against key.
func (r *RateLimiter) Record(ctx context.Context, key string) error {
	if r == nil || r.Store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.load(ctx, key)
	if err != nil {
		return err
	}

	r.resetExpired(state, r.now())
	state.RequestCount++

	return r.Store.UpdateRateLimit(ctx, key, state)
}

// Record429 applies a backoff window from a 429 response. A retryAfter of
// zero or more is honored exactly. With NoRetryAfter the previous backoff for
// the key is multiplied, starting from InitialBackoff and capped at MaxBackoff.
func (r *RateLimiter) Record429(ctx context.Context, key string, retryAfter time.Duration) (time.Duration, error) {
	if r == nil || r.Store == nil {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.load(ctx, key)
	if err != nil {
		return 0, err
	}

	now := r.now()
	r.resetExpired(state, now)
	state.Last429At = &now

	wait := retryAfter
	if wait < 0 {
		wait = r.nextBackoff(state.Backoff)
		state.Backoff = wait
	}
	until := now.Add(wait)
	state.BackoffUntil = &until

	return wait, r.Store.UpdateRateLimit(ctx, key, state)
}

// ResetTime returns the time until the next request for key is allowed:
// the remaining backoff, or the remaining window once the quota is used up.
func (r *RateLimiter) ResetTime(ctx context.Context, key string) (time.Duration, error) {
	_, wait, err := r.Allow(ctx, key)
	return wait, err
}

// Clear drops the state of one key.
func (r *RateLimiter) Clear(ctx context.Context, key string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Store.DeleteRateLimit(ctx, key)
}

// ClearAll drops every key, e.g. on logout.
func (r *RateLimiter) ClearAll(ctx context.Context) error {
	if r == nil || r.Store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Store.ClearRateLimits(ctx)
}

func (r *RateLimiter) load(ctx context.Context, key string) (*core.RateLimitState, error) {
	state, err := r.Store.GetRateLimit(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}
	return state, nil
}

// resetExpired starts a fresh window once the current one has elapsed,
// clearing the counter, any backoff and the backoff history.
func (r *RateLimiter) resetExpired(state *core.RateLimitState, now time.Time) {
	if state.WindowStart.IsZero() {
		state.WindowStart = now
		return
	}
	if now.Sub(state.WindowStart) < r.window() {
		return
	}
	state.RequestCount = 0
	state.WindowStart = now
	state.BackoffUntil = nil
	state.Backoff = 0
}

func (r *RateLimiter) nextBackoff(previous time.Duration) time.Duration {
	initial := r.InitialBackoff
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	ceiling := r.MaxBackoff
	if ceiling <= 0 {
		ceiling = DefaultMaxBackoff
	}
	multiplier := r.Multiplier
	if multiplier <= 1 {
		multiplier = DefaultMultiplier
	}

	next := initial
	if previous > 0 {
		next = time.Duration(float64(previous) * multiplier)
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}

func (r *RateLimiter) maxRequests() int {
	if r.MaxRequests > 0 {
		return r.MaxRequests
	}
	return DefaultMaxRequests
}

func (r *RateLimiter) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultWindow
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
