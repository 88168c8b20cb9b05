package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by the compose gateway
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger with the SIMPLE profile. verbose
// drops the level to debug.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("init cli logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
	return nil
}

// ServerLoggerOptions shape the gateway logger.
type ServerLoggerOptions struct {
	Service string
	// Level is trace, debug, info, warn or error.
	Level string
	// Profile "simple" writes console text; anything else is JSON.
	Profile string
	// Instance is attached to every entry when set.
	Instance string
}

// InitServerLogger initializes the gateway logger on stderr. The default
// STRUCTURED profile writes JSON through the correlation middleware.
func InitServerLogger(opts ServerLoggerOptions) error {
	staticFields := make(map[string]any)
	if opts.Instance != "" {
		staticFields["instance"] = opts.Instance
	}

	config := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  "production",
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
	if strings.EqualFold(opts.Profile, "simple") {
		config.Profile = logging.ProfileSimple
		config.Middleware = nil
		config.Sinks[0].Format = "console"
		config.EnableStacktrace = false
	}

	logger, err := logging.New(config)
	if err != nil {
		return fmt.Errorf("init server logger: %w", err)
	}

	ServerLogger = logger
	return nil
}

func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger returns the server logger when initialized, then the CLI logger.
// Callers that run before either is set get nil and must guard for it.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// Sync flushes whichever loggers are initialized.
func Sync() error {
	var firstErr error
	for _, l := range []*logging.Logger{ServerLogger, CLILogger} {
		if l == nil {
			continue
		}
		if err := l.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
