package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/output"
)

var (
	queueListFormat string
	queueClearYes   bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and replay statuses queued while offline",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending posts and failed drafts",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(queueListFormat)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		pending, failed := s.queue.Posts(), s.queue.FailedPosts()
		if format == output.FormatJSON {
			rendered, err := output.JSON(map[string]any{"pending": pending, "failed": failed})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), output.QueueTable(pending, failed))
		return err
	},
}

var queueSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver pending posts now",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		result, err := s.queue.SyncPosts(cmd.Context())
		if err != nil {
			return err
		}

		lines := []string{"Offline Sync", ""}
		if result.Skipped {
			lines = append(lines, "nothing to sync")
		} else {
			lines = append(lines,
				fmt.Sprintf("synced:  %d", result.Synced),
				fmt.Sprintf("retry:   %d", result.Failed),
				fmt.Sprintf("dropped: %d", result.Dropped),
			)
		}
		lines = append(lines, fmt.Sprintf("pending: %d", len(s.queue.Posts())))
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

var queueDismissCmd = &cobra.Command{
	Use:   "dismiss <id>",
	Short: "Forget a failed draft, or cancel a pending post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		id := strings.TrimSpace(args[0])
		for _, post := range s.queue.Posts() {
			if post.ID == id {
				if err := s.queue.RemovePost(cmd.Context(), id); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed pending post %s\n", id)
				return err
			}
		}

		if err := s.queue.Dismiss(cmd.Context(), id); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Dismissed failed draft %s\n", id)
		return err
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every pending post and failed draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !queueClearYes {
			return errors.New("clear requires --yes")
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		dropped := len(s.queue.Posts()) + len(s.queue.FailedPosts())
		if err := s.queue.Clear(cmd.Context()); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queued post(s)\n", dropped)
		return err
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueListFormat, "output-format", string(output.FormatTable), "Output format: table|json")
	queueClearCmd.Flags().BoolVar(&queueClearYes, "yes", false, "Confirm destructive clear")

	queueCmd.AddCommand(queueListCmd, queueSyncCmd, queueDismissCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
