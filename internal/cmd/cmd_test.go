package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/output"
)

func TestParseVisibility(t *testing.T) {
	vis, err := parseVisibility(" Unlisted ")
	require.NoError(t, err)
	assert.Equal(t, core.VisibilityUnlisted, vis)

	vis, err = parseVisibility("")
	require.NoError(t, err)
	assert.Empty(t, vis)

	_, err = parseVisibility("followers")
	assert.Error(t, err)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"no instance", fmt.Errorf("open: %w", errNoInstance), foundry.ExitConfigInvalid},
		{"network", &client.APIError{Message: "network error: refused"}, foundry.ExitExternalServiceUnavailable},
		{"local limit", &client.RateLimitError{Key: "k", Wait: time.Second}, foundry.ExitExternalServiceUnavailable},
		{"remote limit", &client.APIError{Status: 429, Message: "slow down"}, foundry.ExitExternalServiceUnavailable},
		{"other", errors.New("boom"), foundry.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestDescribeEvent(t *testing.T) {
	update := core.StreamEvent{
		Event:   core.EventUpdate,
		Payload: `{"id":"1","content":"<p>Hello <b>world</b></p>","account":{"id":"9","acct":"alice"}}`,
	}
	assert.Equal(t, "[update] @alice: Hello world", describeEvent(update))

	boost := core.StreamEvent{
		Event:   core.EventUpdate,
		Payload: `{"id":"2","account":{"acct":"bob"},"reblog":{"id":"1","content":"<p>hi</p>","account":{"acct":"alice"}}}`,
	}
	assert.Equal(t, "[update] @bob boosted @alice: hi", describeEvent(boost))

	assert.Equal(t, "[delete] 42", describeEvent(core.StreamEvent{Event: core.EventDelete, Payload: "42"}))
	assert.Equal(t, "[filters_changed] ", describeEvent(core.StreamEvent{Event: "filters_changed"}))
}

func TestWriteEventJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, output.FormatJSON, core.StreamEvent{Event: core.EventDelete, Payload: "7"}))
	assert.JSONEq(t, `{"event":"delete","payload":"7"}`, buf.String())
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, 3, 0, true))
	assert.Equal(t, "Would delete 3 rate limit entr(ies)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatJSON, &buf, 3, 2, false))
	assert.JSONEq(t, `{"matched":3,"deleted":2,"dry_run":false}`, buf.String())
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greater", "config.yaml")
	configInitPath, configInitForce = path, false
	t.Cleanup(func() { configInitPath, configInitForce = "", false })

	var out bytes.Buffer
	configInitCmd.SetOut(&out)
	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rate_limit:")

	err = configInitCmd.RunE(configInitCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	configInitForce = true
	require.NoError(t, configInitCmd.RunE(configInitCmd, nil))
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "unknown", formatTimeAgo(time.Time{}))
	assert.Equal(t, "just now", formatTimeAgo(time.Now()))
	assert.Equal(t, "1 hour ago", formatTimeAgo(time.Now().Add(-61*time.Minute)))
	assert.Equal(t, "3 days ago", formatTimeAgo(time.Now().Add(-73*time.Hour)))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
}
