// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
	"gopkg.in/yaml.v2"

	// Registered drivers are needed to validate the inventory
	_ "github.com/stratastor/pdud/pkg/pdu/drivers"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pdud configuration",
	}

	cmd.AddCommand(NewLoadConfigCmd())
	cmd.AddCommand(NewPrintConfigCmd())
	cmd.AddCommand(NewCheckConfigCmd())
	return cmd
}

func NewLoadConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the configuration file, creating it with defaults if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			fmt.Printf("Configuration loaded from: %s\n", config.GetLoadedConfigPath())
			fmt.Printf("PDUs configured: %d\n", len(cfg.PDUs))
			return nil
		},
	}
}

func NewPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the currently loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			if cfg == nil {
				return fmt.Errorf("no configuration loaded")
			}

			redacted := *cfg
			if redacted.Logger.SentryDSN != "" {
				redacted.Logger.SentryDSN = "[REDACTED]"
			}

			ymlData, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config to YAML: %v", err)
			}

			fmt.Printf("Current Configuration:\n%s\n", string(ymlData))
			return nil
		},
	}
}

// NewCheckConfigCmd validates the daemon timings and the PDU inventory the
// way serve would, without starting any worker.
func NewCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the daemon settings and PDU inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()

			if _, _, err := inventory.OptionsFromConfig(cfg); err != nil {
				return err
			}
			specs, err := inventory.SpecsFromConfig(cfg.PDUs)
			if err != nil {
				return err
			}
			if err := inventory.Validate(specs); err != nil {
				return err
			}

			fmt.Printf("Configuration OK: %d PDUs\n", len(specs))
			return nil
		},
	}
}
