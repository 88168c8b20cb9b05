package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/observability"
)

var (
	postVisibility string
	postSpoiler    string
	postReplyTo    string
	postSensitive  bool
	postLanguage   string
	postMedia      []string
	postAlt        []string
	postNoQueue    bool
)

var postCmd = &cobra.Command{
	Use:   "post [text]",
	Short: "Publish a status",
	Long: `Publish a status. When the server cannot be reached the status is
added to the offline queue and published by "greater queue sync" or the
gateway's background sync.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 1 {
			text = args[0]
		}
		if strings.TrimSpace(text) == "" && len(postMedia) == 0 {
			return errors.New("status text or --media is required")
		}

		visibility, err := parseVisibility(postVisibility)
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		params := core.CreateStatusParams{
			Status:      text,
			Visibility:  visibility,
			InReplyToID: client.NormalizeStatusID(postReplyTo),
			SpoilerText: postSpoiler,
			Sensitive:   postSensitive,
			Language:    postLanguage,
		}

		for i, path := range postMedia {
			alt := ""
			if i < len(postAlt) {
				alt = postAlt[i]
			}
			media, err := uploadFile(cmd, s.client, path, alt)
			if err != nil {
				return err
			}
			params.MediaIDs = append(params.MediaIDs, media.ID)
		}

		// the queued replay reuses this key in case the first attempt landed
		key := uuid.NewString()
		status, err := s.client.CreateStatusWithKey(cmd.Context(), params, key)
		if err == nil {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Posted %s\n", status.ID)
			return err
		}
		if postNoQueue || !client.IsNetworkError(err) || cmd.Context().Err() != nil {
			return err
		}

		id, qerr := s.queue.AddPostWithKey(cmd.Context(), params, key)
		if id == "" {
			return fmt.Errorf("%w (queueing failed: %v)", err, qerr)
		}
		if qerr != nil {
			observability.CLILogger.Warn("Queue mirror write failed", zap.Error(qerr))
		}
		observability.CLILogger.Debug("Server unreachable, status queued", zap.Error(err))
		_, perr := fmt.Fprintf(cmd.OutOrStdout(), "Server unreachable; queued %s for later delivery\n", id)
		return perr
	},
}

func uploadFile(cmd *cobra.Command, c *client.Client, path, description string) (*core.MediaAttachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer f.Close() // nolint:errcheck // read-only file

	return c.UploadMedia(cmd.Context(), filepath.Base(path), f, description)
}

func parseVisibility(value string) (core.Visibility, error) {
	switch vis := core.Visibility(strings.ToLower(strings.TrimSpace(value))); vis {
	case "":
		return "", nil
	case core.VisibilityPublic, core.VisibilityUnlisted, core.VisibilityPrivate, core.VisibilityDirect:
		return vis, nil
	default:
		return "", fmt.Errorf("unknown visibility %q: use public, unlisted, private or direct", value)
	}
}

func init() {
	rootCmd.AddCommand(postCmd)

	postCmd.Flags().StringVar(&postVisibility, "visibility", "", "public|unlisted|private|direct (server default when empty)")
	postCmd.Flags().StringVar(&postSpoiler, "cw", "", "content warning")
	postCmd.Flags().StringVar(&postReplyTo, "reply-to", "", "status id or URL to reply to")
	postCmd.Flags().BoolVar(&postSensitive, "sensitive", false, "mark media as sensitive")
	postCmd.Flags().StringVar(&postLanguage, "language", "", "ISO 639 language code")
	postCmd.Flags().StringSliceVar(&postMedia, "media", nil, "media file to attach (repeatable)")
	postCmd.Flags().StringSliceVar(&postAlt, "alt", nil, "alt text for the media at the same position")
	postCmd.Flags().BoolVar(&postNoQueue, "no-queue", false, "fail instead of queueing when the server is unreachable")
}
