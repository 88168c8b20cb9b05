package client

import (
	"net/url"
	"strings"
)

// ExtractUsername returns the trailing path segment of a profile URL, or
// the identifier itself when it is not URL-shaped. A leading "@" on the
// segment is dropped.
func ExtractUsername(identifier string) string {
	return lastSegment(identifier)
}

// EncodeAccountID percent-encodes identifiers containing "/", ":" or "@"
// so they stay one path segment. Plain ids are returned unchanged.
func EncodeAccountID(id string) string {
	if !strings.ContainsAny(id, "/:@") {
		return id
	}
	return strings.ReplaceAll(url.QueryEscape(id), "+", "%20")
}

// NormalizeStatusID accepts a bare id or a status URL.
func NormalizeStatusID(id string) string {
	return EncodeAccountID(lastSegment(id))
}

func accountPathID(id string) string {
	return EncodeAccountID(ExtractUsername(id))
}

func lastSegment(identifier string) string {
	value := strings.TrimSpace(identifier)
	if !strings.Contains(value, "://") {
		return value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return value
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return value
	}
	return strings.TrimPrefix(last, "@")
}
