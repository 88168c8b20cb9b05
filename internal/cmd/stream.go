package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/stream"
	"github.com/greater-social/greater/internal/observability"
	"github.com/greater-social/greater/internal/output"
)

var (
	streamType   string
	streamTag    string
	streamList   string
	streamFormat string
	streamSSE    bool
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Follow a real-time stream until interrupted",
	Long: `Follow a real-time stream. WebSocket is used when the instance declares
a streaming endpoint, Server-Sent Events otherwise. Dropped connections are
retried with exponential backoff; the command exits once retries run out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := stream.ParseType(streamType)
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(streamFormat)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		streamingURL := ""
		if !streamSSE {
			streamingURL, err = s.client.StreamingURL(ctx)
			if err != nil {
				observability.CLILogger.Warn("Instance lookup failed, using event-stream endpoint", zap.Error(err))
			}
		}

		transport, url, err := stream.NewTransport(streamingURL, s.client.BaseURL, s.cfg.Stream.HeartbeatInterval, &stream.SSETransport{})
		if err != nil {
			return err
		}

		var metrics *observability.Metrics
		if s.cfg.Metrics.Enabled {
			metrics = observability.DefaultMetrics()
		}

		opts := stream.Options{
			Subscription:         stream.Subscription{Type: kind, Tag: streamTag, List: streamList},
			MaxReconnectAttempts: s.cfg.Stream.MaxReconnectAttempts,
			BaseDelay:            s.cfg.Stream.BaseDelay,
			MaxDelay:             s.cfg.Stream.MaxDelay,
			OnOpen: func() {
				observability.CLILogger.Info("Stream connected", zap.String("transport", transport.Name()))
			},
			OnError: func(err error) {
				observability.CLILogger.Warn("Stream error", zap.Error(err))
			},
			Logger:  observability.CLILogger,
			Metrics: metrics,
		}

		events, st, err := stream.Listen(ctx, transport, s.client.AccessToken, url, opts)
		if err != nil {
			return err
		}
		defer st.Disconnect()

		for ev := range events {
			if err := writeEvent(cmd.OutOrStdout(), format, ev); err != nil {
				return err
			}
		}

		if ctx.Err() == nil {
			return fmt.Errorf("stream closed after %d reconnect attempts", st.Attempts())
		}
		return nil
	},
}

func writeEvent(w io.Writer, format output.Format, ev core.StreamEvent) error {
	if format == output.FormatJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	_, err := fmt.Fprintln(w, describeEvent(ev))
	return err
}

// describeEvent is the one-line text form of an event.
func describeEvent(ev core.StreamEvent) string {
	switch ev.Event {
	case core.EventUpdate, core.EventStatusUpdate:
		var status core.Status
		if err := json.Unmarshal([]byte(ev.Payload), &status); err == nil {
			shown := status
			prefix := ""
			if status.Reblog != nil {
				shown = *status.Reblog
				prefix = "@" + status.Account.Acct + " boosted "
			}
			return fmt.Sprintf("[%s] %s@%s: %s", ev.Event, prefix, shown.Account.Acct,
				output.Truncate(strings.Join(strings.Fields(output.PlainText(shown.Content)), " "), 120))
		}
	case core.EventNotification:
		var n core.Notification
		if err := json.Unmarshal([]byte(ev.Payload), &n); err == nil {
			return fmt.Sprintf("[notification] %s from @%s", n.Type, n.Account.Acct)
		}
	case core.EventDelete:
		return "[delete] " + ev.Payload
	}
	return fmt.Sprintf("[%s] %s", ev.Event, output.Truncate(ev.Payload, 120))
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVar(&streamType, "type", string(stream.TypeUser), "user|public|public:local|hashtag|list")
	streamCmd.Flags().StringVar(&streamTag, "tag", "", "hashtag for --type hashtag")
	streamCmd.Flags().StringVar(&streamList, "list", "", "list id for --type list")
	streamCmd.Flags().StringVar(&streamFormat, "output-format", "table", "Output format: table (one line per event)|json")
	streamCmd.Flags().BoolVar(&streamSSE, "sse", false, "force Server-Sent Events")
}
