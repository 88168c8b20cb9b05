package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/greater-social/greater/internal/core"
)

type RateLimitEntry struct {
	Key   string              `json:"key"`
	State core.RateLimitState `json:"state"`
}

// RateLimitQuery selects rate limit keys by exact key, key prefix (usually
// an instance name) or all keys.
type RateLimitQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q RateLimitQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

func (q RateLimitQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE limit_key = ?", []any{key}, nil
	}
	return "WHERE limit_key LIKE ?", []any{strings.TrimSpace(q.Prefix) + "%"}, nil
}

func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT limit_key, request_count, window_start, backoff_until, last_429_at, backoff_ms
		FROM rate_limits
		%s
		ORDER BY limit_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		entry, err := scanRateLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}

	return entries, nil
}

func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM rate_limits
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_limits
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return affected, nil
}
