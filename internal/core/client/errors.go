package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRateLimited matches both local limiter refusals and remote 429s.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout is the cause recorded when the request timeout fires.
	ErrTimeout = errors.New("request timeout")
)

// APIError is an HTTP-level failure. Status 0 means the request never got
// a response: Message is "request timeout", "request cancelled" or a
// network error description.
type APIError struct {
	Status  int
	Message string
	// Details is the decoded error body when it was JSON, else the raw text.
	Details    any
	RetryAfter time.Duration

	err error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e != nil && e.Status == http.StatusTooManyRequests
}

// Timeout reports whether the request was aborted by the client timeout.
func (e *APIError) Timeout() bool {
	return e != nil && errors.Is(e.err, ErrTimeout)
}

// RateLimitError is returned without touching the network when the local
// limiter refuses a request.
type RateLimitError struct {
	Key  string
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	seconds := int(e.Wait.Round(time.Second) / time.Second)
	if seconds < 1 && e.Wait > 0 {
		seconds = 1
	}
	return fmt.Sprintf("rate limited, retry in %ds", seconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsNetworkError reports whether err is a transport failure (no status).
func IsNetworkError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 0
}

// newStatusError classifies a non-2xx response.
func newStatusError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" {
		var decoded map[string]any
		if err := json.Unmarshal(body, &decoded); err == nil {
			apiErr.Details = decoded
			apiErr.Message = serverMessage(decoded)
		} else {
			apiErr.Details = trimmed
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
		if apiErr.Message == "" {
			apiErr.Message = "request failed"
		}
	}
	return apiErr
}

func serverMessage(body map[string]any) string {
	for _, key := range []string{"error", "message", "error_description"} {
		if msg, ok := body[key].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return ""
}
