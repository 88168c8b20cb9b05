package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/config"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/core/store"
	"github.com/greater-social/greater/internal/observability"
)

const doctorTotalChecks = 7

var errDoctorFailed = errors.New("some checks failed")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, the local store, instance reachability, the stored token and the offline queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== " + binaryName + " doctor ===")
		log.Info("")

		ok := true
		step := func(n int, name string) string {
			return fmt.Sprintf("[%d/%d] Checking %s...", n, doctorTotalChecks, name)
		}

		log.Info(fmt.Sprintf("%s ✅ %s %s/%s", step(1, "runtime"), runtime.Version(), runtime.GOOS, runtime.GOARCH),
			zap.String("go_version", runtime.Version()))

		version := crucible.GetVersion()
		if version.Gofulmen != "" {
			log.Info(fmt.Sprintf("%s ✅ gofulmen v%s, crucible v%s", step(2, "gofulmen"), version.Gofulmen, version.Crucible))
		} else {
			log.Warn(step(2, "gofulmen") + " ⚠️  version unavailable")
		}

		cfg, err := loadConfig()
		if err != nil {
			log.Error(step(3, "configuration")+" ❌ cannot load", zap.Error(err))
			return errDoctorFailed
		}
		if used := v.ConfigFileUsed(); used != "" {
			log.Info(fmt.Sprintf("%s ✅ %s", step(3, "configuration"), used))
		} else {
			log.Info(fmt.Sprintf("%s ✅ defaults (run '%s config init' to write %s)", step(3, "configuration"), binaryName, config.DefaultConfigPath()))
		}

		db, err := openStore(ctx, cfg)
		if err != nil {
			log.Error(step(4, "store")+" ❌ cannot open", zap.Error(err))
			ok = false
		} else {
			defer db.Close() // nolint:errcheck // best-effort cleanup
			if pingErr := db.Ping(ctx); pingErr != nil {
				log.Error(step(4, "store")+" ❌ ping failed", zap.Error(pingErr))
				ok = false
			} else {
				log.Info(fmt.Sprintf("%s ✅ %s", step(4, "store"), describeStore(db)))
			}
		}

		if requireInstance(cfg) != nil {
			log.Warn(step(5, "instance") + " ⚠️  none configured (pass --instance or set GREATER_INSTANCE)")
			log.Warn(step(6, "token") + " ⚠️  skipped")
			log.Warn(step(7, "offline queue") + " ⚠️  skipped")
			return finishDoctor(false)
		}

		c := newClient(cfg, db, nil)
		info, err := c.GetInstance(ctx)
		if err != nil {
			log.Error(fmt.Sprintf("%s ❌ %s unreachable", step(5, "instance"), c.Instance), zap.Error(err))
			ok = false
		} else {
			log.Info(fmt.Sprintf("%s ✅ %s (%s)", step(5, "instance"), info.Host(), info.Version))
		}

		switch {
		case db == nil:
			log.Warn(step(6, "token") + " ⚠️  skipped (store unavailable)")
		default:
			ok = checkToken(cmd, db, c, step(6, "token")) && ok
		}

		if db == nil {
			log.Warn(step(7, "offline queue") + " ⚠️  skipped (store unavailable)")
			return finishDoctor(false)
		}
		q, err := newQueue(ctx, cfg, db, c, nil)
		if err != nil {
			log.Error(step(7, "offline queue")+" ❌ cannot load", zap.Error(err))
			return finishDoctor(false)
		}
		pending, failed := q.Posts(), q.FailedPosts()
		switch {
		case len(failed) > 0:
			log.Warn(fmt.Sprintf("%s ⚠️  %d pending, %d failed (see '%s queue list')", step(7, "offline queue"), len(pending), len(failed), binaryName))
		case len(pending) > 0:
			log.Info(fmt.Sprintf("%s ✅ %d pending, oldest queued %s", step(7, "offline queue"), len(pending), formatTimeAgo(pending[0].Timestamp)))
		default:
			log.Info(step(7, "offline queue") + " ✅ empty")
		}

		return finishDoctor(ok)
	},
}

func checkToken(cmd *cobra.Command, db *store.Store, c *client.Client, label string) bool {
	log := observability.CLILogger
	token, err := db.GetToken(cmd.Context(), c.Instance)
	if err != nil {
		log.Error(label+" ❌ cannot read", zap.Error(err))
		return false
	}
	if token == nil {
		log.Warn(fmt.Sprintf("%s ⚠️  none stored (run '%s auth set-token')", label, binaryName))
		return true
	}

	account, err := c.VerifyCredentials(cmd.Context())
	if err != nil {
		log.Error(label+" ❌ rejected", zap.Error(err))
		return false
	}
	log.Info(fmt.Sprintf("%s ✅ @%s (stored %s)", label, account.Acct, formatTimeAgo(token.CreatedAt)))
	return true
}

func describeStore(db *store.Store) string {
	location := db.Location()
	path, isFile := strings.CutPrefix(location, "file:")
	if !isFile {
		return location + " (" + db.Driver() + ")"
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if info, err := os.Stat(path); err == nil {
		return fmt.Sprintf("%s (%s)", path, formatFileSize(info.Size()))
	}
	return path
}

func finishDoctor(ok bool) error {
	log := observability.CLILogger
	log.Info("")
	if !ok {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return errDoctorFailed
	}
	log.Info("✅ All checks passed.")
	return nil
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "min") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	default:
		return plural(int(d.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
