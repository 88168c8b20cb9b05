package client

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/engine"
)

const (
	headerCostTotalMicros   = "X-Cost-Total-Micros"
	headerCostDynamoReads   = "X-Cost-DynamoDB-Reads"
	headerCostDynamoWrites  = "X-Cost-DynamoDB-Writes"
	headerIdempotencyKey    = "Idempotency-Key"
	headerRequestID         = "X-Request-ID"
	headerRetryAfter        = "Retry-After"
	defaultRequestUserAgent = "greater"
)

// retryAfterHeader reads Retry-After as seconds or an HTTP date. An explicit
// zero, or a date already past, means retry now. engine.NoRetryAfter is
// returned when the header is absent or unparseable.
func retryAfterHeader(resp *http.Response, now time.Time) time.Duration {
	if resp == nil || resp.Header == nil {
		return engine.NoRetryAfter
	}

	retry := strings.TrimSpace(resp.Header.Get(headerRetryAfter))
	if retry == "" {
		return engine.NoRetryAfter
	}

	if seconds, err := strconv.ParseFloat(retry, 64); err == nil {
		if seconds < 0 {
			return engine.NoRetryAfter
		}
		return time.Duration(seconds * float64(time.Second))
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return max(parsed.Sub(now), 0)
	}
	return engine.NoRetryAfter
}

// costHeaders extracts the optional cost-accounting headers. The result
// is never nil; absent or malformed headers leave their field nil.
func costHeaders(header http.Header) *core.CostMetrics {
	return &core.CostMetrics{
		TotalMicros:    int64Header(header, headerCostTotalMicros),
		DynamoDBReads:  int64Header(header, headerCostDynamoReads),
		DynamoDBWrites: int64Header(header, headerCostDynamoWrites),
	}
}

func int64Header(header http.Header, name string) *int64 {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
