package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core/client"
	errwrap "github.com/greater-social/greater/internal/errors"
	"github.com/greater-social/greater/internal/observability"
	"github.com/greater-social/greater/internal/server"
	"github.com/greater-social/greater/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local compose gateway",
	Long: `Run a local HTTP gateway that publishes statuses to the configured
instance and queues them while the instance is unreachable. A background
loop probes the instance and replays the queue once it answers again.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file

Set GREATER_ADMIN_TOKEN to expose POST /admin/signal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
			_ = v.BindPFlag("server.host", f)
		}
		if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
			_ = v.BindPFlag("server.port", f)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:  binaryName,
			Level:    cfg.Logging.Level,
			Profile:  cfg.Logging.Profile,
			Instance: cfg.Instance,
		}); err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "logger initialization failed")
		}
		logger := observability.ServerLogger

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close() // nolint:errcheck // best-effort cleanup

		var metrics *observability.Metrics
		if cfg.Metrics.Enabled {
			metrics = observability.DefaultMetrics()
		}

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("store", handlers.CheckerFunc(func(ctx context.Context) error {
			return s.db.Ping(ctx)
		}))
		hm.RegisterChecker("offline_queue", handlers.CheckerFunc(func(ctx context.Context) error {
			if n := len(s.queue.FailedPosts()); n > 0 {
				return errwrap.NewServiceUnavailableError("offline queue holds failed drafts")
			}
			return nil
		}))
		handlers.SetInstance(s.client.Instance)

		srv := server.New(cfg.Server, server.Deps{
			Composer:   &handlers.Composer{Publisher: s.client, Queue: s.queue},
			Health:     hm,
			Metrics:    metrics,
			AdminToken: strings.TrimSpace(os.Getenv("GREATER_ADMIN_TOKEN")),
		})

		logger.Info("Initializing gateway",
			zap.String("version", versionInfo.Version),
			zap.String("instance", s.client.Instance),
			zap.String("addr", srv.Addr()),
			zap.Int("pending", len(s.queue.Posts())))

		runCtx, stopQueue := context.WithCancel(cmd.Context())
		defer stopQueue()
		go func() {
			probe := func(ctx context.Context) bool {
				_, err := s.client.Request(ctx, http.MethodGet, "/api/v1/instance", &client.RequestOptions{
					SkipAuth:  true,
					SkipCache: true,
				})
				return err == nil || !client.IsNetworkError(err)
			}
			if err := s.queue.Run(runCtx, cfg.Offline.SyncInterval, probe); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Offline sync loop stopped", zap.Error(err))
			}
		}()

		// Handlers run LIFO: the gateway stops, then the sync loop, then logs flush.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			stopQueue()
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down gateway...")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("Gateway stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					return nil
				}
				logger.Error("Failed to reload config file", zap.String("file", v.ConfigFileUsed()), zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("Configuration reloaded; listener and limiter settings apply on restart",
				zap.String("file", v.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			logger.Info("Starting gateway", zap.String("addr", srv.Addr()))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
		go func() {
			errChan <- signals.Listen(cmd.Context())
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "gateway error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "gateway host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8787, "gateway port")
}
