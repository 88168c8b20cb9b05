package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/greater-social/greater/internal/core"
)

// OfflinePosts is the durable offline queue of one instance.
type OfflinePosts struct {
	store    *Store
	instance string
}

// OfflinePosts returns the offline queue table scoped to instance.
func (s *Store) OfflinePosts(instance string) *OfflinePosts {
	return &OfflinePosts{store: s, instance: strings.ToLower(strings.TrimSpace(instance))}
}

// PutOfflinePost inserts or updates a queued post. Updates keep the
// original queue position.
func (o *OfflinePosts) PutOfflinePost(ctx context.Context, post core.OfflinePost) error {
	ctx, err := o.store.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(post.ID) == "" {
		return errors.New("offline post id is required")
	}

	payload, err := json.Marshal(post.Data)
	if err != nil {
		return fmt.Errorf("encode offline post: %w", err)
	}

	var lastError, key sql.NullString
	if post.Error != "" {
		lastError = sql.NullString{String: post.Error, Valid: true}
	}
	if post.IdempotencyKey != "" {
		key = sql.NullString{String: post.IdempotencyKey, Valid: true}
	}

	_, err = o.store.DB.ExecContext(ctx, `
		INSERT INTO offline_posts (id, instance, payload, created_at, retries, last_error, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			retries = excluded.retries,
			last_error = excluded.last_error,
			idempotency_key = excluded.idempotency_key
	`, post.ID, o.instance, string(payload), post.Timestamp.UTC().UnixMilli(), post.Retries, lastError, key)
	if err != nil {
		return fmt.Errorf("store offline post: %w", err)
	}
	return nil
}

// DeleteOfflinePost removes a queued post. Missing ids are not an error.
func (o *OfflinePosts) DeleteOfflinePost(ctx context.Context, id string) error {
	ctx, err := o.store.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := o.store.DB.ExecContext(ctx, `DELETE FROM offline_posts WHERE id = ? AND instance = ?`, id, o.instance); err != nil {
		return fmt.Errorf("delete offline post: %w", err)
	}
	return nil
}

// ListOfflinePosts returns queued posts in insertion order.
func (o *OfflinePosts) ListOfflinePosts(ctx context.Context) ([]core.OfflinePost, error) {
	ctx, err := o.store.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := o.store.DB.QueryContext(ctx, `
		SELECT id, payload, created_at, retries, last_error, idempotency_key
		FROM offline_posts
		WHERE instance = ?
		ORDER BY seq
	`, o.instance)
	if err != nil {
		return nil, fmt.Errorf("list offline posts: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	posts := []core.OfflinePost{}
	for rows.Next() {
		var (
			post      core.OfflinePost
			payload   string
			createdAt int64
			lastError sql.NullString
			key       sql.NullString
		)
		if err := rows.Scan(&post.ID, &payload, &createdAt, &post.Retries, &lastError, &key); err != nil {
			return nil, fmt.Errorf("scan offline posts: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &post.Data); err != nil {
			return nil, fmt.Errorf("decode offline post %s: %w", post.ID, err)
		}
		post.Timestamp = time.UnixMilli(createdAt).UTC()
		post.Error = lastError.String
		post.IdempotencyKey = key.String
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offline posts: %w", err)
	}
	return posts, nil
}

// ClearOfflinePosts drops every queued post of the instance.
func (o *OfflinePosts) ClearOfflinePosts(ctx context.Context) error {
	ctx, err := o.store.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := o.store.DB.ExecContext(ctx, `DELETE FROM offline_posts WHERE instance = ?`, o.instance); err != nil {
		return fmt.Errorf("clear offline posts: %w", err)
	}
	return nil
}
