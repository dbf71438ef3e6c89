package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/config"
	"github.com/digibo/backoffice/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "digibo",
	Short:         "Digibo backoffice console and auth backend",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "digibo.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

// setup loads the configuration and builds the logger every subcommand
// starts from.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
