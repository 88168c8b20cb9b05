package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusInteractionFlags(t *testing.T) {
	cases := map[string]string{
		"rest":    `{"id":"1","favourited":true,"reblogged":true,"bookmarked":true}`,
		"liked":   `{"id":"1","liked":true,"shared":true,"bookmarked":true}`,
		"viewer":  `{"id":"1","viewerState":{"liked":true,"reblogged":true,"bookmarked":true}}`,
		"mixture": `{"id":"1","favourited":false,"viewerState":{"liked":true,"shared":true},"bookmarked":true}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var s Status
			require.NoError(t, json.Unmarshal([]byte(payload), &s))
			require.Equal(t, "1", s.ID)
			require.True(t, s.Favourited)
			require.True(t, s.Reblogged)
			require.True(t, s.Bookmarked)
		})
	}

	var plain Status
	require.NoError(t, json.Unmarshal([]byte(`{"id":"2","content":"hi"}`), &plain))
	require.False(t, plain.Favourited)
	require.Equal(t, "hi", plain.Content)
}

func TestInstanceStreamingURL(t *testing.T) {
	var v2 Instance
	require.NoError(t, json.Unmarshal([]byte(`{"domain":"a.social","configuration":{"urls":{"streaming":"wss://a.social"}}}`), &v2))
	require.Equal(t, "wss://a.social", v2.StreamingURL())
	require.Equal(t, "a.social", v2.Host())

	var none *Instance
	require.Empty(t, none.StreamingURL())
}

func TestCostMetricsEmpty(t *testing.T) {
	require.True(t, (*CostMetrics)(nil).Empty())
	v := int64(1)
	require.False(t, (&CostMetrics{DynamoDBWrites: &v}).Empty())
}
