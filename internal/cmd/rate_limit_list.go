package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greater-social/greater/internal/core/store"
	"github.com/greater-social/greater/internal/output"
)

var (
	rateLimitListOutput string
	rateLimitListOut    string
	rateLimitListOutDir string
	rateLimitListAll    bool
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored limiter windows and backoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(rateLimitListOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
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

		query := store.RateLimitQuery{
			All:    rateLimitListAll,
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("rate-limit.list.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			rendered, err := output.JSON(entries)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, rendered)
			return err
		}

		_, err = fmt.Fprintln(sink.writer, output.RateLimitTable(entries))
		return err
	},
}

func init() {
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOut, "out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().StringVar(&rateLimitListOutDir, "out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List every key")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List keys with matching prefix (e.g. an instance name)")
}
