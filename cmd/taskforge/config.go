package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jordigilh/taskforge/internal/config"
)

var configInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or scaffold a new config file",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().Bool("show", true, "print the effective configuration as YAML (default)")
	configCmd.Flags().BoolVar(&configInit, "init", false, "write a default configuration file at --config")
}

func runConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if configInit {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("taskforge: %s already exists", configPath)
		}
		out, err := yaml.Marshal(config.Default())
		if err != nil {
			return err
		}
		return os.WriteFile(configPath, out, 0o644)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
