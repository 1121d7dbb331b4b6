package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dialogd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect dialogd configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	Long: `Load defaults, the config file and DIALOGD_* environment overrides,
and report any validation errors.

Examples:
  dialogctl config validate
  dialogctl config validate --config /etc/dialogd/config.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (listening on %s:%d)\n", cfg.Server.Host, cfg.Server.Port)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFile(configPath)
}
