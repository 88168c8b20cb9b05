package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/output"
)

var (
	timelineLimit   int
	timelineMaxID   string
	timelineSinceID string
	timelineMinID   string
	timelineFormat  string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline [home|public|local|tag <name>|list <id>|account <acct>]",
	Short: "Show a timeline page",
	Args:  cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(timelineFormat)
		if err != nil {
			return err
		}

		kind := "home"
		if len(args) > 0 {
			kind = strings.ToLower(args[0])
		}
		arg := ""
		if len(args) > 1 {
			arg = args[1]
		}
		switch kind {
		case "tag", "list", "account":
			if strings.TrimSpace(arg) == "" {
				return fmt.Errorf("timeline %s needs an argument", kind)
			}
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		page := client.PageParams{
			MaxID:   timelineMaxID,
			SinceID: timelineSinceID,
			MinID:   timelineMinID,
			Limit:   timelineLimit,
		}

		var result *client.Page[core.Status]
		ctx := cmd.Context()
		switch kind {
		case "home":
			result, err = s.client.HomeTimeline(ctx, page)
		case "public":
			result, err = s.client.PublicTimeline(ctx, false, page)
		case "local":
			result, err = s.client.PublicTimeline(ctx, true, page)
		case "tag":
			result, err = s.client.HashtagTimeline(ctx, arg, page)
		case "list":
			result, err = s.client.ListTimeline(ctx, arg, page)
		case "account":
			var account *core.Account
			account, err = s.client.LookupAccount(ctx, arg)
			if err == nil {
				result, err = s.client.AccountStatuses(ctx, account.ID, page)
			}
		default:
			return fmt.Errorf("unknown timeline %q", kind)
		}
		if err != nil {
			return err
		}

		return writeStatuses(cmd, format, result)
	},
}

func writeStatuses(cmd *cobra.Command, format output.Format, page *client.Page[core.Status]) error {
	w := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		rendered, err := output.JSON(map[string]any{
			"statuses": page.Items,
			"next":     page.Links.Next,
			"prev":     page.Links.Prev,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, rendered)
		return err
	case output.FormatMarkdown:
		_, err := fmt.Fprint(w, output.StatusMarkdown(page.Items))
		return err
	}

	if _, err := fmt.Fprintln(w, output.StatusTable(page.Items)); err != nil {
		return err
	}
	if maxID, ok := page.NextParams()["max_id"].(string); ok && maxID != "" {
		_, err := fmt.Fprintf(w, "more: --max-id %s\n", maxID)
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(timelineCmd)

	timelineCmd.Flags().IntVar(&timelineLimit, "limit", 20, "page size")
	timelineCmd.Flags().StringVar(&timelineMaxID, "max-id", "", "return results older than this id")
	timelineCmd.Flags().StringVar(&timelineSinceID, "since-id", "", "return results newer than this id")
	timelineCmd.Flags().StringVar(&timelineMinID, "min-id", "", "return results immediately newer than this id")
	timelineCmd.Flags().StringVar(&timelineFormat, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
