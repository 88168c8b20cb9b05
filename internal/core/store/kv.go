package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetValue returns the value stored under key, or nil when it is missing
// or expired.
func (s *Store) GetValue(ctx context.Context, key string) ([]byte, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("key is required")
	}

	var value []byte
	row := s.DB.QueryRowContext(ctx, `
		SELECT value FROM kv_store
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, time.Now().UTC().UnixMilli())
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch value: %w", err)
	}
	return value, nil
}

// PutValue stores value under key. A ttl of zero keeps it until deleted.
func (s *Store) PutValue(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key is required")
	}

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().UTC().Add(ttl).UnixMilli(), Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("store value: %w", err)
	}
	return nil
}

// DeleteValue removes key.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// PurgeExpiredValues deletes expired entries and returns how many were removed.
func (s *Store) PurgeExpiredValues(ctx context.Context) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	result, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge values: %w", err)
	}
	return result.RowsAffected()
}
