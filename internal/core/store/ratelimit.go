package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/greater-social/greater/internal/core"
)

// GetRateLimit returns stored rate limit state for a key.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("rate limit key is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT limit_key, request_count, window_start, backoff_until, last_429_at, backoff_ms
		FROM rate_limits
		WHERE limit_key = ?
	`, key)

	entry, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return &entry.State, nil
}

// UpdateRateLimit persists rate limit state for a key.
func (s *Store) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("rate limit key is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (limit_key, request_count, window_start, backoff_until, last_429_at, backoff_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(limit_key) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at,
			backoff_ms = excluded.backoff_ms
	`, key, state.RequestCount, state.WindowStart.UTC().UnixMilli(), nullMillis(state.BackoffUntil), nullMillis(state.Last429At), state.Backoff.Milliseconds())
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

// DeleteRateLimit removes the state of a single key.
func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	_, err := s.ResetRateLimits(ctx, RateLimitQuery{Key: key})
	return err
}

// ClearRateLimits removes all stored rate limit state.
func (s *Store) ClearRateLimits(ctx context.Context) error {
	_, err := s.ResetRateLimits(ctx, RateLimitQuery{All: true})
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		key          string
		requestCount int
		windowStart  int64
		backoffUntil sql.NullInt64
		last429At    sql.NullInt64
		backoffMS    int64
	)
	if err := row.Scan(&key, &requestCount, &windowStart, &backoffUntil, &last429At, &backoffMS); err != nil {
		return RateLimitEntry{}, err
	}

	return RateLimitEntry{
		Key: key,
		State: core.RateLimitState{
			RequestCount: requestCount,
			WindowStart:  time.UnixMilli(windowStart).UTC(),
			BackoffUntil: timeFromMillis(backoffUntil),
			Last429At:    timeFromMillis(last429At),
			Backoff:      time.Duration(backoffMS) * time.Millisecond,
		},
	}, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	value := time.UnixMilli(v.Int64).UTC()
	return &value
}
