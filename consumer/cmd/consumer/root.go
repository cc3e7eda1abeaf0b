package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/alertstream/common/config"
	"github.com/telhawk-systems/alertstream/common/logging"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	logger   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "consumer",
	Short: "alertstream security alert consumer",
	Long: `consumer subscribes to the configured EDR and NGAV alert sources,
classifies and normalizes every alert, and stores it in OpenSearch.

It also manages the source registry and its database schema.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $ALERTSTREAM_CONFIG_DIR/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("alertstream-consumer"))
	logging.SetDefault(logger)
	return nil
}
