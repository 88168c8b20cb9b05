package offline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
)

type posterFunc func(ctx context.Context, params core.CreateStatusParams, key string) (*core.Status, error)

func (f posterFunc) CreateStatusWithKey(ctx context.Context, params core.CreateStatusParams, key string) (*core.Status, error) {
	return f(ctx, params, key)
}

type memoryStore struct {
	mu    sync.Mutex
	seq   int
	posts map[string]core.OfflinePost
	order map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{posts: map[string]core.OfflinePost{}, order: map[string]int{}}
}

func (m *memoryStore) PutOfflinePost(_ context.Context, post core.OfflinePost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.order[post.ID]; !ok {
		m.seq++
		m.order[post.ID] = m.seq
	}
	m.posts[post.ID] = post
	return nil
}

func (m *memoryStore) DeleteOfflinePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	delete(m.order, id)
	return nil
}

func (m *memoryStore) ListOfflinePosts(context.Context) ([]core.OfflinePost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.OfflinePost, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] < m.order[out[j].ID] })
	return out, nil
}

func (m *memoryStore) ClearOfflinePosts(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = map[string]core.OfflinePost{}
	m.order = map[string]int{}
	return nil
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

type memoryMirror struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemoryMirror() *memoryMirror { return &memoryMirror{values: map[string][]byte{}} }

func (m *memoryMirror) GetValue(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryMirror) PutValue(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryMirror) DeleteValue(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryMirror) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

func TestSyncRoundTripEmptiesQueue(t *testing.T) {
	ctx := context.Background()
	store, mirror := newMemoryStore(), newMemoryMirror()

	var sent []string
	var keys []string
	q := NewQueue("example.social", posterFunc(func(_ context.Context, p core.CreateStatusParams, key string) (*core.Status, error) {
		sent = append(sent, p.Status)
		keys = append(keys, key)
		return &core.Status{ID: "1", Content: p.Status}, nil
	}), store, mirror)

	first, err := q.AddPost(ctx, core.CreateStatusParams{Status: "first"})
	require.NoError(t, err)
	_, err = q.AddPost(ctx, core.CreateStatusParams{Status: "second"})
	require.NoError(t, err)
	require.Equal(t, 2, store.len())
	require.True(t, mirror.has(PendingKey("example.social")))

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.Synced)

	require.Equal(t, []string{"first", "second"}, sent)
	require.Equal(t, first, keys[0])
	require.Empty(t, q.Posts())
	require.Zero(t, store.len())
	require.False(t, mirror.has(PendingKey("example.social")))
}

func TestRetryCapDropsAfterExactlyThreeFailures(t *testing.T) {
	ctx := context.Background()
	store, mirror := newMemoryStore(), newMemoryMirror()

	var attempts int32
	q := NewQueue("example.social", posterFunc(func(context.Context, core.CreateStatusParams, string) (*core.Status, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("server unavailable")
	}), store, mirror)

	id, err := q.AddPost(ctx, core.CreateStatusParams{Status: "doomed"})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		result, err := q.SyncPosts(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		posts := q.Posts()
		require.Len(t, posts, 1)
		require.Equal(t, i, posts[0].Retries)
		require.Equal(t, "server unavailable", posts[0].Error)
	}

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Dropped)
	require.Empty(t, q.Posts())
	require.Zero(t, store.len())

	result, err = q.SyncPosts(ctx)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	failed := q.FailedPosts()
	require.Len(t, failed, 1)
	require.Equal(t, id, failed[0].ID)
	require.Equal(t, 3, failed[0].Retries)
	require.Equal(t, "server unavailable", failed[0].Error)

	require.NoError(t, q.Dismiss(ctx, id))
	require.Empty(t, q.FailedPosts())
	require.False(t, mirror.has(FailedKey("example.social")))
	require.Error(t, q.Dismiss(ctx, id))
}

func TestSyncIsNotReentrant(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})

	var calls int32
	q := NewQueue("example.social", posterFunc(func(context.Context, core.CreateStatusParams, string) (*core.Status, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
		}
		return &core.Status{ID: "1"}, nil
	}), nil, nil)

	_, err := q.AddPost(ctx, core.CreateStatusParams{Status: "one"})
	require.NoError(t, err)

	done := make(chan SyncResult)
	go func() {
		result, _ := q.SyncPosts(ctx)
		done <- result
	}()
	<-entered

	second, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.True(t, second.Skipped)

	close(release)
	first := <-done
	require.Equal(t, 1, first.Synced)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGoingOnlineTriggersSync(t *testing.T) {
	ctx := context.Background()
	var calls int32
	q := NewQueue("example.social", posterFunc(func(context.Context, core.CreateStatusParams, string) (*core.Status, error) {
		atomic.AddInt32(&calls, 1)
		return &core.Status{ID: "1"}, nil
	}), newMemoryStore(), nil)

	_, err := q.SetOnline(ctx, false)
	require.NoError(t, err)
	_, err = q.AddPost(ctx, core.CreateStatusParams{Status: "queued"})
	require.NoError(t, err)

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Zero(t, atomic.LoadInt32(&calls))

	result, err = q.SetOnline(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Synced)
	require.Empty(t, q.Posts())
}

func TestLocalRateLimitDoesNotSpendRetries(t *testing.T) {
	ctx := context.Background()
	q := NewQueue("example.social", posterFunc(func(context.Context, core.CreateStatusParams, string) (*core.Status, error) {
		return nil, &client.RateLimitError{Wait: time.Minute}
	}), nil, nil)

	_, err := q.AddPost(ctx, core.CreateStatusParams{Status: "a"})
	require.NoError(t, err)
	_, err = q.AddPost(ctx, core.CreateStatusParams{Status: "b"})
	require.NoError(t, err)

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Failed)
	posts := q.Posts()
	require.Len(t, posts, 2)
	require.Zero(t, posts[0].Retries)
}

func TestLoadRehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	store, mirror := newMemoryStore(), newMemoryMirror()

	q := NewQueue("example.social", nil, store, mirror)
	a, err := q.AddPost(ctx, core.CreateStatusParams{Status: "a"})
	require.NoError(t, err)
	b, err := q.AddPost(ctx, core.CreateStatusParams{Status: "b"})
	require.NoError(t, err)

	restored := NewQueue("example.social", nil, store, mirror)
	require.NoError(t, restored.Load(ctx))
	posts := restored.Posts()
	require.Len(t, posts, 2)
	require.Equal(t, a, posts[0].ID)
	require.Equal(t, b, posts[1].ID)

	mirrorOnly := NewQueue("example.social", nil, nil, mirror)
	require.NoError(t, mirrorOnly.Load(ctx))
	require.Len(t, mirrorOnly.Posts(), 2)

	require.NoError(t, restored.Clear(ctx))
	require.Empty(t, restored.Posts())
	require.Zero(t, store.len())
	require.False(t, mirror.has(PendingKey("example.social")))
}

func TestRunSyncsWhenPostAdded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synced := make(chan string, 1)
	q := NewQueue("example.social", posterFunc(func(_ context.Context, p core.CreateStatusParams, _ string) (*core.Status, error) {
		synced <- p.Status
		return &core.Status{ID: "1"}, nil
	}), nil, nil)

	go func() { _ = q.Run(ctx, time.Hour, func(context.Context) bool { return true }) }()

	_, err := q.AddPost(ctx, core.CreateStatusParams{Status: "wake"})
	require.NoError(t, err)

	select {
	case status := <-synced:
		require.Equal(t, "wake", status)
	case <-time.After(2 * time.Second):
		t.Fatal("post was not synced")
	}
}

func TestSyncSkipsPostsClearedMidPass(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	var q *Queue
	var sent []string
	q = NewQueue("example.social", posterFunc(func(_ context.Context, p core.CreateStatusParams, _ string) (*core.Status, error) {
		sent = append(sent, p.Status)
		if len(sent) == 1 {
			require.NoError(t, q.Clear(ctx))
		}
		return &core.Status{ID: "1"}, nil
	}), store, nil)

	_, err := q.AddPost(ctx, core.CreateStatusParams{Status: "a"})
	require.NoError(t, err)
	_, err = q.AddPost(ctx, core.CreateStatusParams{Status: "b"})
	require.NoError(t, err)

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, sent)
	require.Equal(t, 1, result.Synced)
	require.Empty(t, q.Posts())
	require.Zero(t, store.len())
}

func TestSyncContinuesPastPostRemovedMidPass(t *testing.T) {
	ctx := context.Background()

	var q *Queue
	var b string
	var sent []string
	q = NewQueue("example.social", posterFunc(func(_ context.Context, p core.CreateStatusParams, _ string) (*core.Status, error) {
		sent = append(sent, p.Status)
		if p.Status == "a" {
			require.NoError(t, q.RemovePost(ctx, b))
		}
		return nil, errors.New("server unavailable")
	}), nil, nil)

	_, err := q.AddPost(ctx, core.CreateStatusParams{Status: "a"})
	require.NoError(t, err)
	b, err = q.AddPost(ctx, core.CreateStatusParams{Status: "b"})
	require.NoError(t, err)
	_, err = q.AddPost(ctx, core.CreateStatusParams{Status: "c"})
	require.NoError(t, err)

	result, err := q.SyncPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, sent)
	require.Equal(t, 2, result.Failed)

	posts := q.Posts()
	require.Len(t, posts, 2)
	require.Equal(t, "c", posts[1].Data.Status)
	require.Equal(t, 1, posts[1].Retries)
}

func TestUpdatePostUnknownID(t *testing.T) {
	q := NewQueue("example.social", nil, nil, nil)
	err := q.UpdatePost(context.Background(), "missing", 1, "boom")
	require.ErrorIs(t, err, ErrPostNotFound)
}

func TestSyncReplaysCallerIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	var keys []string
	q := NewQueue("example.social", posterFunc(func(_ context.Context, _ core.CreateStatusParams, key string) (*core.Status, error) {
		keys = append(keys, key)
		return &core.Status{ID: "1"}, nil
	}), store, nil)

	_, err := q.AddPostWithKey(ctx, core.CreateStatusParams{Status: "keyed"}, "client-key")
	require.NoError(t, err)
	plain, err := q.AddPost(ctx, core.CreateStatusParams{Status: "plain"})
	require.NoError(t, err)

	restored := NewQueue("example.social", q.Poster, store, nil)
	require.NoError(t, restored.Load(ctx))
	_, err = restored.SyncPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"client-key", plain}, keys)
}
