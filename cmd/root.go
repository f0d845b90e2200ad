// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/stratastor/pdud/cmd/config"
	"github.com/stratastor/pdud/cmd/health"
	"github.com/stratastor/pdud/cmd/logs"
	"github.com/stratastor/pdud/cmd/pdu"
	"github.com/stratastor/pdud/cmd/serve"
	"github.com/stratastor/pdud/cmd/status"
	"github.com/stratastor/pdud/cmd/version"
	pdudconfig "github.com/stratastor/pdud/config"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pdud",
		Short: "pdud: PDU power control daemon",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Later GetConfig calls return this instance
			pdudconfig.LoadConfig(configPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(health.NewHealthCmd())
	rootCmd.AddCommand(status.NewStatusCmd())
	rootCmd.AddCommand(logs.NewLogsCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(pdu.NewPDUCmd())

	return rootCmd
}
