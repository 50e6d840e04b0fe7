package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tink3rlabs/targeting/config"
	"github.com/tink3rlabs/targeting/logger"
)

var (
	configFile string
	logLevel   string
	logJSON    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "targeting",
	Short:         "Targeting query engine",
	Long:          `targeting parses and generates targeting queries and serves an API selecting profiles with them.`,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON = logJSON
		}
		logger.Init(&logger.Config{Level: logger.MapLogLevel(cfg.Log.Level), JSON: cfg.Log.JSON})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON")
}

func Execute() error {
	return rootCmd.Execute()
}
