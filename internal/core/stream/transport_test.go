package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
)

func collect(t *testing.T, events <-chan core.StreamEvent, n int) []core.StreamEvent {
	t.Helper()
	var got []core.StreamEvent
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed early")
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	return got
}

func TestSSETransportParsesEvents(t *testing.T) {
	var query map[string][]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.Query()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ":thump\n\nevent: update\ndata: {\"id\":\"1\",\ndata: \"content\":\"hi\"}\n\nevent: delete\ndata: 42\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, _, err := Listen(ctx, &SSETransport{HTTPClient: srv.Client()}, staticToken("tok"), srv.URL, Options{
		Subscription: Subscription{Type: TypeHashtag, Tag: "#golang"},
	})
	require.NoError(t, err)

	got := collect(t, events, 2)
	require.Equal(t, core.EventUpdate, got[0].Event)
	require.Equal(t, "{\"id\":\"1\",\n\"content\":\"hi\"}", got[0].Payload)
	require.Equal(t, core.EventDelete, got[1].Event)
	require.Equal(t, "42", got[1].Payload)

	require.Equal(t, "/api/v1/streaming/hashtag", path)
	require.Equal(t, []string{"golang"}, query["tag"])
	require.Equal(t, []string{"tok"}, query["access_token"])

	cancel()
	for range events {
	}
}

func TestSSEURL(t *testing.T) {
	u, err := SSEURL(Target{URL: "https://example.social", Token: "t", Subscription: Subscription{Type: TypePublicLocal}})
	require.NoError(t, err)
	require.Equal(t, "https://example.social/api/v1/streaming/public/local?access_token=t", u)

	u, err = SSEURL(Target{URL: "https://example.social/", Token: "t", Subscription: Subscription{Type: TypeList, List: "12"}})
	require.NoError(t, err)
	require.Equal(t, "https://example.social/api/v1/streaming/list?access_token=t&list=12", u)
}

func TestWebSocketURL(t *testing.T) {
	u, err := WebSocketURL(Target{URL: "https://streaming.example.social", Token: "t"})
	require.NoError(t, err)
	require.Equal(t, "wss://streaming.example.social/api/v1/streaming?access_token=t&stream=user", u)
}

func TestWebSocketTransportHeartbeatAndNormalization(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 16)
	var query map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close() // nolint:errcheck // test cleanup

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				select {
				case received <- string(data):
				default:
				}
			}
		}()

		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"stream":["user"],"event":"update","payload":"{\"id\":\"1\"}"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"stream":["user"],"event":"notification","payload":{"id":"2"}}`))
		<-done
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, s, err := Listen(ctx, &WebSocketTransport{Heartbeat: 20 * time.Millisecond}, staticToken("tok"), srv.URL, Options{})
	require.NoError(t, err)

	got := collect(t, events, 2)
	require.Equal(t, core.EventUpdate, got[0].Event)
	require.Equal(t, `{"id":"1"}`, got[0].Payload)
	require.Equal(t, []string{"user"}, got[0].Stream)
	require.Equal(t, core.EventNotification, got[1].Event)
	require.JSONEq(t, `{"id":"2"}`, got[1].Payload)

	var sawPong, sawPing bool
	deadline := time.After(2 * time.Second)
	for !sawPong || !sawPing {
		select {
		case frame := <-received:
			var msg map[string]string
			require.NoError(t, json.Unmarshal([]byte(frame), &msg))
			sawPong = sawPong || msg["type"] == "pong"
			sawPing = sawPing || msg["type"] == "ping"
		case <-deadline:
			t.Fatalf("pong=%v ping=%v", sawPong, sawPing)
		}
	}

	require.Equal(t, []string{"user"}, query["stream"])
	require.Equal(t, []string{"tok"}, query["access_token"])

	s.Disconnect()
	require.Equal(t, StateDisconnected, s.State())
}
