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

// GetToken returns the access token stored for instance, or nil.
func (s *Store) GetToken(ctx context.Context, instance string) (*core.Token, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	instance = normalizeInstance(instance)
	if instance == "" {
		return nil, errors.New("instance is required")
	}

	var (
		token     core.Token
		tokenType sql.NullString
		scope     sql.NullString
		createdAt int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT instance, access_token, token_type, scope, created_at
		FROM tokens WHERE instance = ?
	`, instance)
	if err := row.Scan(&token.Instance, &token.AccessToken, &tokenType, &scope, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	token.TokenType = tokenType.String
	token.Scope = scope.String
	token.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &token, nil
}

// SetToken stores the access token for token.Instance.
func (s *Store) SetToken(ctx context.Context, token core.Token) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	instance := normalizeInstance(token.Instance)
	if instance == "" {
		return errors.New("instance is required")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return errors.New("access token is required")
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tokens (instance, access_token, token_type, scope, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(instance) DO UPDATE SET
			access_token = excluded.access_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			created_at = excluded.created_at
	`, instance, strings.TrimSpace(token.AccessToken), token.TokenType, token.Scope, token.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// DeleteToken removes the token of instance.
func (s *Store) DeleteToken(ctx context.Context, instance string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tokens WHERE instance = ?`, normalizeInstance(instance)); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func normalizeInstance(instance string) string {
	instance = strings.ToLower(strings.TrimSpace(instance))
	instance = strings.TrimPrefix(instance, "https://")
	instance = strings.TrimPrefix(instance, "http://")
	return strings.TrimSuffix(instance, "/")
}
