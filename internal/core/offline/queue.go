// Package offline keeps statuses composed without connectivity and replays
// them, in order, once the server is reachable again.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/observability"
)

// DefaultMaxRetries is the number of failed deliveries before a post is
// moved to the failed list.
const DefaultMaxRetries = 3

// ErrPostNotFound is returned when an id is no longer in the queue.
var ErrPostNotFound = errors.New("offline post not found")

// Poster publishes a queued status. The post's idempotency key (or its id
// when none was supplied) is sent so a replay after a lost response does
// not publish twice.
type Poster interface {
	CreateStatusWithKey(ctx context.Context, params core.CreateStatusParams, idempotencyKey string) (*core.Status, error)
}

// DurableStore is the structured source of truth for queued posts.
type DurableStore interface {
	PutOfflinePost(ctx context.Context, post core.OfflinePost) error
	DeleteOfflinePost(ctx context.Context, id string) error
	ListOfflinePosts(ctx context.Context) ([]core.OfflinePost, error)
	ClearOfflinePosts(ctx context.Context) error
}

// Mirror is a key-value copy of the queue for fast reads.
type Mirror interface {
	GetValue(ctx context.Context, key string) ([]byte, error)
	PutValue(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteValue(ctx context.Context, key string) error
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Synced  int
	Failed  int
	Dropped int
	Skipped bool
}

// Queue is the offline mutation queue for one instance.
type Queue struct {
	Instance   string
	Poster     Poster
	Store      DurableStore
	Mirror     Mirror
	MaxRetries int
	Logger     *logging.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time

	mu      sync.Mutex
	posts   []core.OfflinePost
	failed  []core.OfflinePost
	online  bool
	syncing bool
	wake    chan struct{}
}

// NewQueue returns an empty queue that considers itself online.
func NewQueue(instance string, poster Poster, store DurableStore, mirror Mirror) *Queue {
	return &Queue{
		Instance: instance,
		Poster:   poster,
		Store:    store,
		Mirror:   mirror,
		online:   true,
		wake:     make(chan struct{}, 1),
	}
}

// PendingKey and FailedKey name the mirror entries of an instance.
func PendingKey(instance string) string { return "offline_posts:" + strings.ToLower(instance) }
func FailedKey(instance string) string  { return "offline_failed:" + strings.ToLower(instance) }

// Load rehydrates pending posts from the durable store and failed drafts
// from the mirror.
func (q *Queue) Load(ctx context.Context) error {
	var posts []core.OfflinePost
	switch {
	case q.Store != nil:
		stored, err := q.Store.ListOfflinePosts(ctx)
		if err != nil {
			return fmt.Errorf("load offline posts: %w", err)
		}
		posts = stored
	case q.Mirror != nil:
		mirrored, err := q.readMirror(ctx, PendingKey(q.Instance))
		if err != nil {
			return err
		}
		posts = mirrored
	}

	failed, err := q.readMirror(ctx, FailedKey(q.Instance))
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.posts = posts
	q.failed = failed
	q.record()
	return q.writeMirrorLocked(ctx)
}

// AddPost queues params and returns the new post id.
func (q *Queue) AddPost(ctx context.Context, params core.CreateStatusParams) (string, error) {
	return q.AddPostWithKey(ctx, params, "")
}

// AddPostWithKey queues params and replays them under idempotencyKey. An
// empty key falls back to the post id.
func (q *Queue) AddPostWithKey(ctx context.Context, params core.CreateStatusParams, idempotencyKey string) (string, error) {
	post := core.OfflinePost{
		ID:             ulid.Make().String(),
		Data:           params,
		Timestamp:      q.now(),
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}

	q.mu.Lock()
	if q.Store != nil {
		if err := q.Store.PutOfflinePost(ctx, post); err != nil {
			q.mu.Unlock()
			return "", fmt.Errorf("persist offline post: %w", err)
		}
	}
	q.posts = append(q.posts, post)
	err := q.writeMirrorLocked(ctx)
	q.record()
	q.mu.Unlock()

	q.debug("post queued offline", zap.String("id", post.ID))
	q.signal()
	return post.ID, err
}

// RemovePost drops a pending post.
func (q *Queue) RemovePost(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(ctx, id)
}

func (q *Queue) removeLocked(ctx context.Context, id string) error {
	if q.Store != nil {
		if err := q.Store.DeleteOfflinePost(ctx, id); err != nil {
			return fmt.Errorf("delete offline post: %w", err)
		}
	}
	q.posts = lo.Reject(q.posts, func(p core.OfflinePost, _ int) bool { return p.ID == id })
	q.record()
	return q.writeMirrorLocked(ctx)
}

// UpdatePost records a failed delivery. Once retries reaches the cap the
// post leaves the queue and is kept as a failed draft with its last error.
func (q *Queue) UpdatePost(ctx context.Context, id string, retries int, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(q.posts, func(p core.OfflinePost) bool { return p.ID == id })
	if !ok {
		return fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	post := q.posts[idx]
	post.Retries = retries
	post.Error = lastErr

	if retries >= q.maxRetries() {
		if err := q.removeLocked(ctx, id); err != nil {
			return err
		}
		q.failed = append(q.failed, post)
		q.record()
		q.warn("offline post dropped after retries",
			zap.String("id", id),
			zap.Int("retries", retries),
			zap.String("error", lastErr))
		return q.writeMirrorLocked(ctx)
	}

	if q.Store != nil {
		if err := q.Store.PutOfflinePost(ctx, post); err != nil {
			return fmt.Errorf("persist offline post: %w", err)
		}
	}
	q.posts[idx] = post
	return q.writeMirrorLocked(ctx)
}

// SetOnline records connectivity. Going online with queued posts starts a
// sync pass.
func (q *Queue) SetOnline(ctx context.Context, online bool) (SyncResult, error) {
	q.mu.Lock()
	wasOnline := q.online
	q.online = online
	pending := len(q.posts)
	q.mu.Unlock()

	if online && !wasOnline && pending > 0 {
		return q.SyncPosts(ctx)
	}
	return SyncResult{Skipped: true}, nil
}

// Online reports the last recorded connectivity.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// SyncPosts delivers queued posts in insertion order. Only one pass runs at
// a time; a call made while offline, empty or already syncing is skipped.
func (q *Queue) SyncPosts(ctx context.Context) (SyncResult, error) {
	if q.Poster == nil {
		return SyncResult{}, errors.New("offline queue has no poster")
	}

	q.mu.Lock()
	if !q.online || len(q.posts) == 0 || q.syncing {
		q.mu.Unlock()
		return SyncResult{Skipped: true}, nil
	}
	q.syncing = true
	snapshot := append([]core.OfflinePost(nil), q.posts...)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.syncing = false
		q.mu.Unlock()
	}()

	var result SyncResult
	for _, queued := range snapshot {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		// removed or cleared since the pass started
		post, ok := q.lookup(queued.ID)
		if !ok {
			continue
		}

		_, err := q.Poster.CreateStatusWithKey(ctx, post.Data, post.ReplayKey())
		if err == nil {
			if err := q.RemovePost(ctx, post.ID); err != nil {
				return result, err
			}
			result.Synced++
			q.Metrics.OfflineSync("synced")
			continue
		}

		// a local refusal never reached the server; stop the pass without
		// spending a retry
		var limitErr *client.RateLimitError
		if errors.As(err, &limitErr) {
			q.debug("offline sync paused by rate limiter", zap.Duration("wait", limitErr.Wait))
			break
		}

		retries := post.Retries + 1
		if uerr := q.UpdatePost(ctx, post.ID, retries, err.Error()); uerr != nil {
			if errors.Is(uerr, ErrPostNotFound) {
				continue
			}
			return result, uerr
		}
		if retries >= q.maxRetries() {
			result.Dropped++
			q.Metrics.OfflineSync("dropped")
		} else {
			result.Failed++
			q.Metrics.OfflineSync("failed")
		}
		q.debug("offline post delivery failed",
			zap.String("id", post.ID),
			zap.Int("retries", retries),
			zap.Error(err))
	}
	return result, nil
}

func (q *Queue) lookup(id string) (core.OfflinePost, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.Find(q.posts, func(p core.OfflinePost) bool { return p.ID == id })
}

// Posts returns the pending posts in insertion order.
func (q *Queue) Posts() []core.OfflinePost {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.OfflinePost(nil), q.posts...)
}

// FailedPosts returns posts that exhausted their retries and have not been
// dismissed.
func (q *Queue) FailedPosts() []core.OfflinePost {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.OfflinePost(nil), q.failed...)
}

// Dismiss forgets a failed draft.
func (q *Queue) Dismiss(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.failed)
	q.failed = lo.Reject(q.failed, func(p core.OfflinePost, _ int) bool { return p.ID == id })
	if len(q.failed) == before {
		return fmt.Errorf("failed post %s not found", id)
	}
	q.record()
	return q.writeMirrorLocked(ctx)
}

// Clear drops every pending post and failed draft.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Store != nil {
		if err := q.Store.ClearOfflinePosts(ctx); err != nil {
			return fmt.Errorf("clear offline posts: %w", err)
		}
	}
	q.posts = nil
	q.failed = nil
	q.record()

	if q.Mirror == nil {
		return nil
	}
	if err := q.Mirror.DeleteValue(ctx, PendingKey(q.Instance)); err != nil {
		return err
	}
	return q.Mirror.DeleteValue(ctx, FailedKey(q.Instance))
}

// Run syncs every interval and whenever a post is added, until ctx is
// done. When probe is set it decides connectivity before each pass.
func (q *Queue) Run(ctx context.Context, interval time.Duration, probe func(context.Context) bool) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-q.wakeC():
		}

		var err error
		result := SyncResult{Skipped: true}
		if probe != nil {
			result, err = q.SetOnline(ctx, probe(ctx))
		}
		if err == nil && result.Skipped && q.Online() {
			_, err = q.SyncPosts(ctx)
		}
		if err != nil && ctx.Err() == nil {
			q.warn("offline sync failed", zap.Error(err))
		}
	}
}

func (q *Queue) wakeC() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.wake == nil {
		q.wake = make(chan struct{}, 1)
	}
	return q.wake
}

func (q *Queue) signal() {
	ch := q.wakeC()
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (q *Queue) readMirror(ctx context.Context, key string) ([]core.OfflinePost, error) {
	if q.Mirror == nil {
		return nil, nil
	}
	data, err := q.Mirror.GetValue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var posts []core.OfflinePost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return posts, nil
}

func (q *Queue) writeMirrorLocked(ctx context.Context) error {
	if q.Mirror == nil {
		return nil
	}
	for key, posts := range map[string][]core.OfflinePost{
		PendingKey(q.Instance): q.posts,
		FailedKey(q.Instance):  q.failed,
	} {
		if len(posts) == 0 {
			if err := q.Mirror.DeleteValue(ctx, key); err != nil {
				return fmt.Errorf("mirror %s: %w", key, err)
			}
			continue
		}
		data, err := json.Marshal(posts)
		if err != nil {
			return err
		}
		if err := q.Mirror.PutValue(ctx, key, data, 0); err != nil {
			return fmt.Errorf("mirror %s: %w", key, err)
		}
	}
	return nil
}

func (q *Queue) record() {
	q.Metrics.SetOfflineQueue(len(q.posts), len(q.failed))
}

func (q *Queue) maxRetries() int {
	if q.MaxRetries > 0 {
		return q.MaxRetries
	}
	return DefaultMaxRetries
}

func (q *Queue) now() time.Time {
	if q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}

func (q *Queue) debug(msg string, fields ...zap.Field) {
	if q.Logger != nil {
		q.Logger.Debug(msg, fields...)
	}
}

func (q *Queue) warn(msg string, fields ...zap.Field) {
	if q.Logger != nil {
		q.Logger.Warn(msg, fields...)
	}
}
