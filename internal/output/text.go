package output

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	breakTags = regexp.MustCompile(`(?i)<br\s*/?>|</p>\s*<p[^>]*>`)
	anyTag    = regexp.MustCompile(`<[^>]*>`)
	spaces    = regexp.MustCompile(`[ \t]+`)
)

// PlainText turns status HTML into display text. Paragraph and line breaks
// become newlines; every other tag is dropped.
func PlainText(content string) string {
	text := breakTags.ReplaceAllString(content, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = spaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
