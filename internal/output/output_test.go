package output

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/store"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestPlainText(t *testing.T) {
	got := PlainText(`<p>Hello <a href="https://x">@bob</a> &amp; friends</p><p>second<br/>line</p>`)
	require.Equal(t, "Hello @bob & friends\nsecond\nline", got)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	require.Equal(t, "ünïc…", Truncate("ünïcödé", 5))
}

func sampleStatuses() []core.Status {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	original := core.Status{
		ID:              "2",
		Content:         "<p>original | post</p>",
		CreatedAt:       created,
		Account:         core.Account{Acct: "alice@remote.example"},
		FavouritesCount: 3,
	}
	return []core.Status{
		{ID: "1", Content: "<p>hi</p>", SpoilerText: "food", CreatedAt: created, Account: core.Account{Acct: "bob"}},
		{ID: "3", Account: core.Account{Acct: "carol"}, Reblog: &original},
	}
}

func TestStatusTable(t *testing.T) {
	rendered := StatusTable(sampleStatuses())

	require.Contains(t, rendered, "@bob")
	require.Contains(t, rendered, "[CW: food] hi")
	require.Contains(t, rendered, "@alice@remote.example")
	require.Contains(t, rendered, "(via @carol)")
	require.Contains(t, rendered, "0/0/3")
	require.Contains(t, rendered, "2026-10-01T12:00:00Z")
}

func TestStatusTableEmpty(t *testing.T) {
	require.Contains(t, StatusTable(nil), "no statuses")
}

func TestStatusMarkdownEscaping(t *testing.T) {
	rendered := StatusMarkdown(sampleStatuses())

	require.True(t, strings.HasPrefix(rendered, "| ID | Author | When | Status |"))
	require.Contains(t, rendered, `original \| post`)
	require.Contains(t, rendered, "@alice@remote.example (via @carol)")
}

func TestQueueTable(t *testing.T) {
	pending := []core.OfflinePost{{ID: "01A", Data: core.CreateStatusParams{Status: "later"}}}
	failed := []core.OfflinePost{{ID: "01B", Data: core.CreateStatusParams{Status: "broken"}, Retries: 3, Error: "api error 500"}}

	rendered := QueueTable(pending, failed)

	require.Contains(t, rendered, "01A")
	require.Contains(t, rendered, "pending")
	require.Contains(t, rendered, "api error 500")
	require.Contains(t, rendered, "1 pending, 1 failed")
}

func TestRateLimitTable(t *testing.T) {
	until := time.Date(2026, 10, 1, 12, 5, 0, 0, time.UTC)
	rendered := RateLimitTable([]store.RateLimitEntry{{
		Key: "social.example:user",
		State: core.RateLimitState{
			RequestCount: 12,
			WindowStart:  until.Add(-5 * time.Minute),
			BackoffUntil: &until,
			Backoff:      2 * time.Second,
		},
	}})

	require.Contains(t, rendered, "social.example:user")
	require.Contains(t, rendered, "2026-10-01T12:05:00Z")
	require.Contains(t, rendered, "2s")

	require.Contains(t, RateLimitTable(nil), "no stored state")
}

func TestInstanceTable(t *testing.T) {
	info := &core.Instance{Domain: "social.example", Title: "Example", Version: "4.3.0"}
	info.Configuration.URLs.Streaming = "wss://streaming.social.example"
	info.Configuration.Statuses.MaxCharacters = 500

	rendered := InstanceTable(info)

	require.Contains(t, rendered, "social.example")
	require.Contains(t, rendered, "wss://streaming.social.example")
	require.Contains(t, rendered, "500")
}

func TestJSON(t *testing.T) {
	rendered, err := JSON(map[string]int{"synced": 2})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"synced\": 2\n}", rendered)
}
