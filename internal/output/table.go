package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/store"
)

const contentWidth = 60

func newTable() table.Writer {
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	t := table.NewWriter()
	t.SetStyle(style)
	return t
}

// StatusRow is the display form of one status. Reblogs show the booster in
// Via and the original post everywhere else.
type StatusRow struct {
	ID      string
	Author  string
	Via     string
	When    time.Time
	Text    string
	Counts  string
	Visible core.Visibility
}

func statusRow(s core.Status) StatusRow {
	row := StatusRow{ID: s.ID}
	shown := s
	if s.Reblog != nil {
		row.Via = "@" + s.Account.Acct
		shown = *s.Reblog
	}
	row.Author = "@" + shown.Account.Acct
	row.When = shown.CreatedAt
	row.Visible = shown.Visibility

	text := PlainText(shown.Content)
	if shown.SpoilerText != "" {
		text = "[CW: " + shown.SpoilerText + "] " + text
	}
	if n := len(shown.MediaAttachments); n > 0 {
		text += fmt.Sprintf(" [%d media]", n)
	}
	row.Text = oneLine(text)
	row.Counts = fmt.Sprintf("%d/%d/%d", shown.RepliesCount, shown.ReblogsCount, shown.FavouritesCount)
	return row
}

// StatusTable renders a timeline page.
func StatusTable(statuses []core.Status) string {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Author", "When", "Status", "Re/Boost/Fav"})
	for _, s := range statuses {
		row := statusRow(s)
		author := row.Author
		if row.Via != "" {
			author += "\n(via " + row.Via + ")"
		}
		t.AppendRow(table.Row{row.ID, author, formatTime(row.When), Truncate(row.Text, contentWidth), row.Counts})
	}
	if len(statuses) == 0 {
		t.AppendFooter(table.Row{"", "", "", "no statuses", ""})
	}
	return t.Render()
}

// QueueTable renders pending posts and failed drafts.
func QueueTable(pending, failed []core.OfflinePost) string {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "State", "Queued", "Retries", "Status", "Last Error"})
	for _, p := range pending {
		t.AppendRow(table.Row{p.ID, "pending", formatTime(p.Timestamp), p.Retries, Truncate(oneLine(p.Data.Status), 40), p.Error})
	}
	for _, p := range failed {
		t.AppendRow(table.Row{p.ID, "failed", formatTime(p.Timestamp), p.Retries, Truncate(oneLine(p.Data.Status), 40), p.Error})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d pending, %d failed", len(pending), len(failed)), ""})
	return t.Render()
}

// RateLimitTable renders persisted limiter state.
func RateLimitTable(entries []store.RateLimitEntry) string {
	t := newTable()
	t.AppendHeader(table.Row{"Key", "Requests", "Window Start", "Backoff Until", "Backoff"})
	for _, e := range entries {
		until := "-"
		if e.State.BackoffUntil != nil {
			until = formatTime(*e.State.BackoffUntil)
		}
		backoff := "-"
		if e.State.Backoff > 0 {
			backoff = e.State.Backoff.String()
		}
		t.AppendRow(table.Row{e.Key, e.State.RequestCount, formatTime(e.State.WindowStart), until, backoff})
	}
	if len(entries) == 0 {
		t.AppendFooter(table.Row{"", "", "", "", "no stored state"})
	}
	return t.Render()
}

// InstanceTable renders instance metadata as key/value rows.
func InstanceTable(info *core.Instance) string {
	t := newTable()
	t.AppendHeader(table.Row{"Field", "Value"})
	if info == nil {
		return t.Render()
	}
	t.AppendRow(table.Row{"Host", info.Host()})
	t.AppendRow(table.Row{"Title", info.Title})
	t.AppendRow(table.Row{"Version", info.Version})
	streaming := info.StreamingURL()
	if streaming == "" {
		streaming = "-"
	}
	t.AppendRow(table.Row{"Streaming", streaming})
	if limit := info.Configuration.Statuses.MaxCharacters; limit > 0 {
		t.AppendRow(table.Row{"Max characters", limit})
	}
	return t.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
