package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/config"
	"github.com/greater-social/greater/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== greater environment ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + binaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := v.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not present)"
		}
		instanceName := cfg.Instance
		if strings.TrimSpace(instanceName) == "" {
			instanceName = "(unset)"
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + configFile)
		log.Info("  Instance:       "+instanceName, zap.String("instance", cfg.Instance))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info(fmt.Sprintf("  Gateway:        %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Metrics:        %t", cfg.Metrics.Enabled))
		log.Info("")

		log.Info("Request pipeline:")
		log.Info(fmt.Sprintf("  Quota:          %d per %s", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window))
		log.Info(fmt.Sprintf("  Backoff:        %s x%.1f up to %s", cfg.RateLimit.InitialBackoff, cfg.RateLimit.Multiplier, cfg.RateLimit.MaxBackoff))
		log.Info(fmt.Sprintf("  Persist Limits: %t", cfg.RateLimit.Persist))
		log.Info("  Cache TTL:      " + cfg.Client.CacheTTL.String())
		log.Info("  Timeout:        " + cfg.Client.Timeout.String())
		log.Info("")

		log.Info("Streaming / offline:")
		log.Info(fmt.Sprintf("  Reconnects:     %d (%s to %s)", cfg.Stream.MaxReconnectAttempts, cfg.Stream.BaseDelay, cfg.Stream.MaxDelay))
		log.Info("  Heartbeat:      " + cfg.Stream.HeartbeatInterval.String())
		log.Info(fmt.Sprintf("  Max Retries:    %d", cfg.Offline.MaxRetries))
		log.Info("  Sync Interval:  " + cfg.Offline.SyncInterval.String())
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
