package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/greater-social/greater/internal/core"
)

// GetStatus fetches a status by id or URL.
func (c *Client) GetStatus(ctx context.Context, id string) (*core.Status, error) {
	var status core.Status
	if _, err := c.getJSON(ctx, "/api/v1/statuses/"+NormalizeStatusID(id), nil, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateStatus posts a new status.
func (c *Client) CreateStatus(ctx context.Context, params core.CreateStatusParams) (*core.Status, error) {
	return c.CreateStatusWithKey(ctx, params, "")
}

// CreateStatusWithKey posts a new status with an Idempotency-Key, so a
// retried post is not published twice.
func (c *Client) CreateStatusWithKey(ctx context.Context, params core.CreateStatusParams, idempotencyKey string) (*core.Status, error) {
	if strings.TrimSpace(params.Status) == "" && len(params.MediaIDs) == 0 {
		return nil, errors.New("status text or media is required")
	}
	var status core.Status
	err := c.sendJSON(ctx, http.MethodPost, "/api/v1/statuses", &RequestOptions{
		Body:           params,
		IdempotencyKey: idempotencyKey,
	}, "status", &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// DeleteStatus removes a status and returns it.
func (c *Client) DeleteStatus(ctx context.Context, id string) (*core.Status, error) {
	var status core.Status
	if err := c.sendJSON(ctx, http.MethodDelete, "/api/v1/statuses/"+NormalizeStatusID(id), nil, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetStatusContext fetches ancestors and descendants of a status.
func (c *Client) GetStatusContext(ctx context.Context, id string) (*core.StatusContext, error) {
	var thread core.StatusContext
	if _, err := c.getJSON(ctx, "/api/v1/statuses/"+NormalizeStatusID(id)+"/context", nil, "context", &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

func (c *Client) Favourite(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "favourite")
}

func (c *Client) Unfavourite(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "unfavourite")
}

func (c *Client) Reblog(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "reblog")
}

func (c *Client) Unreblog(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "unreblog")
}

func (c *Client) Bookmark(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "bookmark")
}

func (c *Client) Unbookmark(ctx context.Context, id string) (*core.Status, error) {
	return c.statusAction(ctx, id, "unbookmark")
}

func (c *Client) statusAction(ctx context.Context, id, action string) (*core.Status, error) {
	var status core.Status
	path := "/api/v1/statuses/" + NormalizeStatusID(id) + "/" + action
	if err := c.sendJSON(ctx, http.MethodPost, path, nil, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}
