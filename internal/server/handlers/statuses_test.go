package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/core/offline"
)

type fakePublisher struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakePublisher) CreateStatusWithKey(ctx context.Context, params core.CreateStatusParams, key string) (*core.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	return &core.Status{ID: "109", Content: params.Status}, nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newComposer(pub *fakePublisher) (*Composer, http.Handler) {
	c := &Composer{
		Publisher: pub,
		Queue:     offline.NewQueue("social.example", pub, nil, nil),
	}
	r := chi.NewRouter()
	r.Post("/api/v1/statuses", c.CreateStatus)
	r.Get("/queue", c.ListQueue)
	r.Post("/queue/sync", c.SyncQueue)
	r.Delete("/queue/{id}", c.DeleteQueued)
	return c, r
}

func postStatus(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/statuses", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateStatusPublishes(t *testing.T) {
	pub := &fakePublisher{}
	_, h := newComposer(pub)

	rec := postStatus(t, h, `{"status":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var status core.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "109", status.ID)
	assert.Equal(t, []string{"key-1"}, pub.calls)
}

func TestCreateStatusRejectsEmptyBody(t *testing.T) {
	_, h := newComposer(&fakePublisher{})

	rec := postStatus(t, h, `{"status":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")

	rec = postStatus(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateStatusQueuesOnNetworkError(t *testing.T) {
	pub := &fakePublisher{err: &client.APIError{Message: "network error: connection refused"}}
	c, h := newComposer(pub)

	rec := postStatus(t, h, `{"status":"later"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var queued QueuedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&queued))
	assert.True(t, queued.Queued)
	assert.NotEmpty(t, queued.ID)
	assert.False(t, c.Queue.Online())

	posts := c.Queue.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "later", posts[0].Data.Status)
	assert.Equal(t, "key-1", posts[0].IdempotencyKey)

	pub.setErr(nil)
	req := httptest.NewRequest(http.MethodPost, "/queue/sync", nil)
	syncRec := httptest.NewRecorder()
	h.ServeHTTP(syncRec, req)

	require.Equal(t, http.StatusOK, syncRec.Code)
	var result SyncResponse
	require.NoError(t, json.NewDecoder(syncRec.Body).Decode(&result))
	assert.Equal(t, 1, result.Synced)
	assert.Empty(t, c.Queue.Posts())
	assert.Equal(t, []string{"key-1", "key-1"}, pub.calls)
}

func TestCreateStatusMapsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &client.APIError{Status: 422, Message: "Validation failed"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unauthorized", &client.APIError{Status: 401, Message: "The access token is invalid"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"remote limit", &client.APIError{Status: 429, Message: "Too many requests", RetryAfter: 30 * time.Second}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"local limit", &client.RateLimitError{Key: "k", Wait: 1500 * time.Millisecond}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"server", &client.APIError{Status: 500, Message: "boom"}, http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, h := newComposer(&fakePublisher{err: tt.err})

			rec := postStatus(t, h, `{"status":"x"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Empty(t, c.Queue.Posts())
		})
	}
}

func TestRateLimitedResponseSetsRetryAfter(t *testing.T) {
	_, h := newComposer(&fakePublisher{err: &client.RateLimitError{Wait: 1500 * time.Millisecond}})

	rec := postStatus(t, h, `{"status":"x"}`)

	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestDeleteQueued(t *testing.T) {
	pub := &fakePublisher{err: &client.APIError{Message: "request timeout"}}
	c, h := newComposer(pub)

	id, err := c.Queue.AddPost(context.Background(), core.CreateStatusParams{Status: "draft"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/queue/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, c.Queue.Posts())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/queue/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQueue(t *testing.T) {
	c, h := newComposer(&fakePublisher{})
	_, err := c.Queue.AddPost(context.Background(), core.CreateStatusParams{Status: "one"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QueueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Online)
	assert.Len(t, resp.Pending, 1)
	assert.NotNil(t, resp.Failed)
}
