package cmd

import (
	"errors"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/config"
	"github.com/greater-social/greater/internal/observability"
)

const binaryName = "greater"

var (
	cfgFile  string
	verbose  bool
	instance string

	// v holds the layered settings once initConfig has run.
	v *viper.Viper

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// errNoInstance is returned by commands that talk to a server when none is
// configured.
var errNoInstance = errors.New("no instance configured: pass --instance or set GREATER_INSTANCE")

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Client for Mastodon-compatible servers",
	Long: `greater talks to a Mastodon-compatible server through a rate-limited,
cached request pipeline. Statuses composed while the server is unreachable
are queued and replayed once it is back.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/greater/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVarP(&instance, "instance", "i", "", "instance host or base URL")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := observability.InitCLILogger(binaryName, verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	vp, err := config.NewViper(cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read configuration", err)
	}
	if f := rootCmd.PersistentFlags().Lookup("instance"); f != nil {
		_ = vp.BindPFlag("instance", f)
	}
	v = vp

	if used := v.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	} else {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}
}

// loadConfig decodes the current settings, re-reading them so flags bound by
// subcommands are picked up.
func loadConfig() (*config.Config, error) {
	if v == nil {
		vp, err := config.NewViper(cfgFile)
		if err != nil {
			return nil, err
		}
		v = vp
	}
	return config.Load(v)
}

func requireInstance(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Instance) == "" {
		return errNoInstance
	}
	return nil
}
