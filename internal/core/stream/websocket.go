package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greater-social/greater/internal/core"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketTransport connects to an instance-declared streaming endpoint.
// Messages are normalized into the same events the SSE transport emits.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
	// Heartbeat is the interval between client pings.
	Heartbeat time.Duration
}

func (t *WebSocketTransport) Name() string { return "websocket" }

// WebSocketURL builds the socket URL for target, mapping http(s) to ws(s)
// and defaulting the path to /api/v1/streaming.
func WebSocketURL(target Target) (string, error) {
	u, err := url.Parse(target.URL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid streaming url %q", target.URL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https", "":
		u.Scheme = "wss"
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = "/api/v1/streaming"
	}

	kind := target.Subscription.Type
	if kind == "" {
		kind = TypeUser
	}
	query := u.Query()
	query.Set("stream", string(kind))
	for key, value := range target.Subscription.params() {
		query.Set(key, value)
	}
	query.Set("access_token", target.Token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (t *WebSocketTransport) Open(ctx context.Context, target Target) (Conn, error) {
	endpoint, err := WebSocketURL(target)
	if err != nil {
		return nil, err
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	heartbeat := t.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &wsConn{ws: ws, heartbeat: heartbeat}, nil
}

type wsConn struct {
	ws        *websocket.Conn
	heartbeat time.Duration
	closeOnce sync.Once
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

type wsMessage struct {
	Type    string          `json:"type,omitempty"`
	Event   string          `json:"event,omitempty"`
	Stream  []string        `json:"stream,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	pingFrame = []byte(`{"type":"ping"}`)
	pongFrame = []byte(`{"type":"pong"}`)
)

// Run reads frames until the socket fails. A single writer goroutine owns
// all writes: heartbeat pings and pong replies.
func (c *wsConn) Run(ctx context.Context, emit func(core.StreamEvent)) error {
	handleCtx, handleCancel := context.WithCancel(ctx)
	defer handleCancel()

	send := make(chan []byte, 8)
	writeErr := make(chan error, 1)

	go func() {
		defer handleCancel()
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()

		for {
			var frame []byte
			select {
			case <-handleCtx.Done():
				return
			case frame = <-send:
			case <-ticker.C:
				frame = pingFrame
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	stop := context.AfterFunc(handleCtx, func() { _ = c.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case werr := <-writeErr:
				return werr
			default:
			}
			return err
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch {
		case msg.Type == "ping":
			select {
			case send <- pongFrame:
			case <-handleCtx.Done():
			}
			continue
		case msg.Type == "pong":
			continue
		case msg.Event == "":
			continue
		}

		emit(core.StreamEvent{
			Event:   msg.Event,
			Payload: normalizePayload(msg.Payload),
			Stream:  msg.Stream,
		})
	}
}

// normalizePayload returns the payload as a raw JSON string whether the
// server sent it as an encoded string or as an embedded object.
func normalizePayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return encoded
	}
	return string(raw)
}

// NewTransport picks WebSocket when the instance declares a streaming URL
// and falls back to Server-Sent Events against baseURL otherwise. It
// returns the transport and the URL to connect to.
func NewTransport(streamingURL, baseURL string, heartbeat time.Duration, sse *SSETransport) (Transport, string, error) {
	if strings.TrimSpace(streamingURL) != "" {
		return &WebSocketTransport{Heartbeat: heartbeat}, streamingURL, nil
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, "", errors.New("no streaming endpoint available")
	}
	if sse == nil {
		sse = &SSETransport{}
	}
	return sse, baseURL, nil
}
