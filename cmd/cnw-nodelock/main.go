package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

var (
	VERSION = "0.0.0-dev.0"
)

var rootCmd = &cobra.Command{
	Use:               "cnw-nodelock",
	Version:           VERSION,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	Short:             "Create, issue and check machine-bound licenses",
	Long: `cnw-nodelock manages offline, machine-bound licenses.

A client runs "request" to write an encrypted license request for its
machine. The license server runs "issue" to turn that request into a
signed license file, which the client verifies with "check".`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rootArgs.cfg = cfg
		if rootArgs.logLevel != "" {
			cfg.LogLevel = rootArgs.logLevel
		}
		logger = cfg.Logger()
		return nil
	},
}

type rootFlags struct {
	configFile string
	logLevel   string
	timeout    time.Duration
	cfg        *nodelock.Config
}

const defaultTimeout = time.Minute

var (
	rootArgs = rootFlags{
		timeout: defaultTimeout,
	}
	logger = slog.Default()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configFile, "config", "",
		"Path to a YAML configuration file. Environment variables prefixed with CNW_NODELOCK_ take precedence.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "",
		"Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", rootArgs.timeout,
		"The length of time to wait before giving up on registry operations.")
	rootCmd.SetOut(os.Stdout)
}

func loadConfig() (*nodelock.Config, error) {
	if rootArgs.configFile != "" {
		return nodelock.LoadConfigFile(rootArgs.configFile)
	}
	return nodelock.LoadConfig()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("✗ %v\n", err)
		os.Exit(1)
	}
}
