package core

import "time"

// RateLimitState captures per-key rate limiting state.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
	// Backoff is the most recent exponential backoff applied to the key.
	Backoff time.Duration
}

// CostMetrics carries the optional cost-accounting headers of a response.
// Nil fields were not supplied by the server.
type CostMetrics struct {
	TotalMicros    *int64 `json:"total_micros"`
	DynamoDBReads  *int64 `json:"dynamodb_reads"`
	DynamoDBWrites *int64 `json:"dynamodb_writes"`
}

// Empty reports whether no cost header was present.
func (c *CostMetrics) Empty() bool {
	return c == nil || (c.TotalMicros == nil && c.DynamoDBReads == nil && c.DynamoDBWrites == nil)
}
