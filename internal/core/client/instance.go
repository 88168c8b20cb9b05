package client

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
)

type instanceCall struct {
	done chan struct{}
	info *core.Instance
	err  error
}

// GetInstance returns the instance metadata, fetching it at most once.
// Concurrent callers during a fetch share its result; a failed fetch is
// forgotten so the next call retries.
func (c *Client) GetInstance(ctx context.Context) (*core.Instance, error) {
	if c == nil {
		return nil, errors.New("client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.instanceInfo != nil {
		info := c.instanceInfo
		c.mu.Unlock()
		return info, nil
	}
	if call := c.instanceCall; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.info, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &instanceCall{done: make(chan struct{})}
	c.instanceCall = call
	c.mu.Unlock()

	call.info, call.err = c.fetchInstance(ctx)

	c.mu.Lock()
	if call.err == nil {
		c.instanceInfo = call.info
	}
	c.instanceCall = nil
	c.mu.Unlock()
	close(call.done)

	return call.info, call.err
}

// fetchInstance tries the v2 endpoint and falls back to v1.
func (c *Client) fetchInstance(ctx context.Context) (*core.Instance, error) {
	var info core.Instance
	resp, err := c.Request(ctx, http.MethodGet, "/api/v2/instance", &RequestOptions{SkipAuth: true})
	if err == nil {
		if err = c.decode(resp, "instance", &info); err == nil {
			return &info, nil
		}
	}
	if errors.Is(err, ErrRateLimited) {
		return nil, err
	}
	c.debug("v2 instance lookup failed, trying v1", zap.String("instance", c.Instance), zap.Error(err))

	info = core.Instance{}
	resp, err = c.Request(ctx, http.MethodGet, "/api/v1/instance", &RequestOptions{SkipAuth: true})
	if err != nil {
		return nil, err
	}
	if err := c.decode(resp, "instance", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StreamingURL returns the instance-declared real-time endpoint, or "" when
// the server only offers the event-stream endpoints.
func (c *Client) StreamingURL(ctx context.Context) (string, error) {
	info, err := c.GetInstance(ctx)
	if err != nil {
		return "", err
	}
	return info.StreamingURL(), nil
}

// AccessToken returns the stored token for the client's instance.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c == nil || c.Tokens == nil {
		return "", nil
	}
	token, err := c.Tokens.GetToken(ctx, c.Instance)
	if err != nil || token == nil {
		return "", err
	}
	return token.AccessToken, nil
}
