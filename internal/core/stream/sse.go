package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/greater-social/greater/internal/core"
)

// SSETransport reads the per-stream event-stream endpoints under
// /api/v1/streaming. The token travels as the access_token query parameter.
type SSETransport struct {
	HTTPClient *http.Client
}

func (t *SSETransport) Name() string { return "sse" }

// ssePath maps a stream type to its endpoint.
func ssePath(kind Type) (string, error) {
	switch kind {
	case TypeUser, "":
		return "/api/v1/streaming/user", nil
	case TypePublic:
		return "/api/v1/streaming/public", nil
	case TypePublicLocal:
		return "/api/v1/streaming/public/local", nil
	case TypeHashtag:
		return "/api/v1/streaming/hashtag", nil
	case TypeList:
		return "/api/v1/streaming/list", nil
	default:
		return "", fmt.Errorf("unsupported stream type %q", kind)
	}
}

// SSEURL builds the event-stream URL for target.
func SSEURL(target Target) (string, error) {
	base, err := url.Parse(target.URL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid streaming base url %q", target.URL)
	}
	path, err := ssePath(target.Subscription.Type)
	if err != nil {
		return "", err
	}
	base.Path = strings.TrimRight(base.Path, "/") + path

	query := base.Query()
	for key, value := range target.Subscription.params() {
		query.Set(key, value)
	}
	query.Set("access_token", target.Token)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (t *SSETransport) Open(ctx context.Context, target Target) (Conn, error) {
	endpoint, err := SSEURL(target)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}
	return &sseConn{body: resp.Body}, nil
}

type sseConn struct {
	body io.ReadCloser
}

func (c *sseConn) Close() error {
	return c.body.Close()
}

// Run parses the event stream: `event:` and `data:` fields accumulate until
// a blank line dispatches them; lines starting with ':' are comments.
func (c *sseConn) Run(ctx context.Context, emit func(core.StreamEvent)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.body.Close() })
	defer stop()

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				if event == "" {
					event = "message"
				}
				emit(core.StreamEvent{Event: event, Payload: strings.Join(data, "\n")})
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
			case "data":
				data = append(data, value)
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("event stream closed")
}
