// Package client is the request pipeline for a Mastodon-compatible server:
// rate limiting, response caching, auth, timeouts, error classification
// and cost-header extraction for every outbound call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/engine"
	"github.com/greater-social/greater/internal/observability"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// TokenSource supplies the access token for an instance. A nil token means
// the client is not logged in.
type TokenSource interface {
	GetToken(ctx context.Context, instance string) (*core.Token, error)
}

// StaticToken is a fixed access token.
type StaticToken string

func (t StaticToken) GetToken(_ context.Context, instance string) (*core.Token, error) {
	if strings.TrimSpace(string(t)) == "" {
		return nil, nil
	}
	return &core.Token{Instance: instance, AccessToken: string(t), TokenType: "Bearer"}, nil
}

// Client talks to one instance. The zero value is not usable; build it with
// NewClient or fill Instance and BaseURL.
type Client struct {
	Instance   string
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *engine.RateLimiter
	Cache      *RequestCache
	Tokens     TokenSource
	Validator  Validator
	Logger     *logging.Logger
	Metrics    *observability.Metrics
	Timeout    time.Duration
	UserAgent  string
	Clock      func() time.Time

	mu           sync.Mutex
	lastCost     *core.CostMetrics
	instanceInfo *core.Instance
	instanceCall *instanceCall
}

// NewClient returns a client for instance with an in-memory limiter and
// cache. instance may be a hostname or a base URL.
func NewClient(instance string) *Client {
	host, base := splitInstance(instance)
	return &Client{
		Instance:  host,
		BaseURL:   base,
		Limiter:   engine.NewRateLimiter(nil),
		Cache:     NewRequestCache(DefaultCacheTTL),
		Validator: DefaultValidator(),
		Timeout:   DefaultTimeout,
	}
}

func splitInstance(instance string) (string, string) {
	value := strings.TrimRight(strings.TrimSpace(instance), "/")
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil {
			return strings.ToLower(parsed.Host), value
		}
	}
	return strings.ToLower(value), "https://" + value
}

// RequestOptions tune a single request.
type RequestOptions struct {
	Params map[string]any
	// Body is encoded as JSON. Ignored when Form is set.
	Body           any
	Form           *Form
	Headers        map[string]string
	SkipAuth       bool
	SkipCache      bool
	IdempotencyKey string
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ETag       string
	Cost       *core.CostMetrics
	FromCache  bool
}

// Links returns the pagination links of the response.
func (r *Response) Links() Links {
	if r == nil || r.Header == nil {
		return Links{}
	}
	return ParseLinks(r.Header.Get("Link"))
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Request performs one call through the pipeline. path is relative to the
// instance base URL.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	if c == nil {
		return nil, errors.New("client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &RequestOptions{}
	}
	method = strings.ToUpper(method)

	key := engine.Key(c.Instance, method, path)
	allowed, wait, err := c.Limiter.Allow(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		c.Metrics.RateLimited("local")
		c.debug("request refused by rate limiter", zap.String("key", key), zap.Duration("wait", wait))
		return nil, &RateLimitError{Key: key, Wait: wait}
	}

	target, err := c.resolve(path, opts.Params)
	if err != nil {
		return nil, err
	}

	cacheable := method == http.MethodGet && !opts.SkipCache && !opts.SkipAuth
	if cacheable {
		if entry, ok := c.Cache.get(cacheKey(method, target)); ok {
			c.Metrics.CacheLookup(true)
			return &Response{
				StatusCode: http.StatusOK,
				Header:     entry.header,
				Body:       entry.body,
				ETag:       entry.etag,
				FromCache:  true,
			}, nil
		}
		c.Metrics.CacheLookup(false)
	}

	var body io.Reader
	contentType := "application/json"
	switch {
	case opts.Form != nil:
		buf, formType, err := opts.Form.encode()
		if err != nil {
			return nil, fmt.Errorf("encode form: %w", err)
		}
		body, contentType = buf, formType
	case opts.Body != nil:
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	reqCtx, cancel := context.WithTimeoutCause(ctx, c.timeout(), ErrTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set(headerRequestID, uuid.New().String())
	if opts.IdempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, opts.IdempotencyKey)
	}
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}

	if !opts.SkipAuth && c.Tokens != nil {
		token, err := c.Tokens.GetToken(ctx, c.Instance)
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
		if token != nil && token.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		}
	}

	if err := c.Limiter.Record(ctx, key); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	started := c.now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.Metrics.ObserveRequest(method, "error", c.now().Sub(started))
		return nil, c.transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(resp.Body)
	c.Metrics.ObserveRequest(method, strconv.Itoa(resp.StatusCode), c.now().Sub(started))
	if err != nil {
		return nil, c.transportError(ctx, reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newStatusError(resp.StatusCode, payload)
		if resp.StatusCode == http.StatusTooManyRequests {
			c.Metrics.RateLimited("remote")
			applied, limErr := c.Limiter.Record429(ctx, key, retryAfterHeader(resp, c.now()))
			if limErr != nil {
				c.warn("failed to record rate limit backoff", zap.String("key", key), zap.Error(limErr))
			}
			apiErr.RetryAfter = applied
		}
		c.debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, apiErr
	}

	cost := costHeaders(resp.Header)
	c.mu.Lock()
	c.lastCost = cost
	c.mu.Unlock()

	if cacheable {
		c.Cache.put(cacheKey(method, target), payload, resp.Header)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
		ETag:       resp.Header.Get("ETag"),
		Cost:       cost,
	}, nil
}

// LastCost returns the cost metrics of the most recent network response.
func (c *Client) LastCost() *core.CostMetrics {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCost
}

// ClearCache drops cached responses and instance metadata.
func (c *Client) ClearCache() {
	if c == nil {
		return
	}
	c.Cache.Clear()
	c.mu.Lock()
	c.instanceInfo = nil
	c.mu.Unlock()
}

func (c *Client) transportError(ctx, reqCtx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return &APIError{Message: "request cancelled", err: ctx.Err()}
	case errors.Is(context.Cause(reqCtx), ErrTimeout):
		return &APIError{Message: "request timeout", err: ErrTimeout}
	default:
		return &APIError{Message: "network error: " + err.Error(), err: err}
	}
}

func (c *Client) resolve(path string, params map[string]any) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	target := base.ResolveReference(ref)
	if basePath := strings.TrimRight(base.Path, "/"); basePath != "" && strings.HasPrefix(path, "/") {
		target.Path = basePath + ref.Path
	}

	query := target.Query()
	for key, values := range encodeParams(params) {
		query[key] = values
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

// getJSON performs a GET and decodes the body into out after validation.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]any, schema string, out any) (*Response, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, &RequestOptions{Params: params})
	if err != nil {
		return nil, err
	}
	return resp, c.decode(resp, schema, out)
}

// sendJSON performs a mutation and decodes the response.
func (c *Client) sendJSON(ctx context.Context, method, path string, opts *RequestOptions, schema string, out any) error {
	resp, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return err
	}
	return c.decode(resp, schema, out)
}

func (c *Client) decode(resp *Response, schema string, out any) error {
	if out == nil {
		return nil
	}
	validateResponse(c.Validator, schema, resp.Body, c.Logger)
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", schema, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return defaultRequestUserAgent
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Client) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}
