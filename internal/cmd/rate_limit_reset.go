package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/core/store"
	"github.com/greater-social/greater/internal/output"
)

var (
	rateLimitResetAll    bool
	rateLimitResetKey    string
	rateLimitResetPrefix string
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
	rateLimitResetOutput string
	rateLimitResetOut    string
	rateLimitResetOutDir string
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget stored limiter state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.RateLimitQuery{
			All:    rateLimitResetAll,
			Key:    strings.TrimSpace(rateLimitResetKey),
			Prefix: strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("rate-limit.reset.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if rateLimitResetDryRun {
			return writeRateLimitResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeRateLimitResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeRateLimitResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		rendered, err := output.JSON(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, rendered)
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate limit entr(ies)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate limit entr(ies)\n", deleted, matched)
	return err
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset every key")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetKey, "key", "", "Reset a single limiter key (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset keys with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be deleted")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOut, "out", "", "Write output to a file (default stdout)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetOutDir, "out-dir", "", "Write output to a directory")
}
