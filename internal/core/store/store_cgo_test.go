//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/greater-social/greater/internal/config"
	"github.com/greater-social/greater/internal/core"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/greater.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestOpenMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "libsql", s.Driver())
	require.NoError(t, s.Close())
}

func TestOpenLocalStoreConfiguresSQLite(t *testing.T) {
	s := openTestStore(t)
	require.Equal(t, 1, s.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, s.DB.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	exists, err := s.hasColumn(context.Background(), "rate_limits", "backoff_ms")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestRateLimitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	missing, err := s.GetRateLimit(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.Nil(t, missing)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := start.Add(1500 * time.Millisecond)
	require.NoError(t, s.UpdateRateLimit(ctx, "a:GET:/x", &core.RateLimitState{
		RequestCount: 7,
		WindowStart:  start,
		BackoffUntil: &until,
		Backoff:      2 * time.Second,
	}))
	require.NoError(t, s.UpdateRateLimit(ctx, "b:GET:/x", &core.RateLimitState{WindowStart: start}))

	state, err := s.GetRateLimit(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.Equal(t, 7, state.RequestCount)
	require.True(t, start.Equal(state.WindowStart))
	require.True(t, until.Equal(*state.BackoffUntil))
	require.Equal(t, 2*time.Second, state.Backoff)

	entries, err := s.ListRateLimits(ctx, RateLimitQuery{Prefix: "a:"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, s.DeleteRateLimit(ctx, "a:GET:/x"))
	count, err := s.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, s.ClearRateLimits(ctx))
	count, err = s.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOfflinePostsKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	posts := s.OfflinePosts("mastodon.social")
	other := s.OfflinePosts("example.com")

	now := time.Now().UTC()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, posts.PutOfflinePost(ctx, core.OfflinePost{
			ID:        id,
			Data:      core.CreateStatusParams{Status: "post " + id},
			Timestamp: now,
		}))
	}
	require.NoError(t, other.PutOfflinePost(ctx, core.OfflinePost{ID: "z", Timestamp: now}))

	require.NoError(t, posts.PutOfflinePost(ctx, core.OfflinePost{
		ID:        "c",
		Data:      core.CreateStatusParams{Status: "post c"},
		Timestamp: now,
		Retries:   1,
		Error:     "boom",

		IdempotencyKey: "client-key",
	}))

	list, err := posts.ListOfflinePosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "c", list[0].ID)
	require.Equal(t, 1, list[0].Retries)
	require.Equal(t, "boom", list[0].Error)
	require.Equal(t, "client-key", list[0].IdempotencyKey)
	require.Empty(t, list[1].IdempotencyKey)
	require.Equal(t, "a", list[1].ID)
	require.Equal(t, "post b", list[2].Data.Status)

	require.NoError(t, posts.DeleteOfflinePost(ctx, "a"))
	list, err = posts.ListOfflinePosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, posts.ClearOfflinePosts(ctx))
	list, err = posts.ListOfflinePosts(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = other.ListOfflinePosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestKeyValueTTL(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutValue(ctx, "keep", []byte("1"), 0))
	require.NoError(t, s.PutValue(ctx, "gone", []byte("2"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	value, err := s.GetValue(ctx, "keep")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	value, err = s.GetValue(ctx, "gone")
	require.NoError(t, err)
	require.Nil(t, value)

	purged, err := s.PurgeExpiredValues(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	require.NoError(t, s.DeleteValue(ctx, "keep"))
	value, err = s.GetValue(ctx, "keep")
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SetToken(ctx, core.Token{Instance: "https://Mastodon.Social", AccessToken: "abc", Scope: "read write"}))

	token, err := s.GetToken(ctx, "mastodon.social")
	require.NoError(t, err)
	require.Equal(t, "abc", token.AccessToken)
	require.Equal(t, "read write", token.Scope)

	require.NoError(t, s.DeleteToken(ctx, "mastodon.social"))
	token, err = s.GetToken(ctx, "mastodon.social")
	require.NoError(t, err)
	require.Nil(t, token)
}
