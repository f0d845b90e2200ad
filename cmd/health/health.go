// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/health"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
)

func NewHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check PDU daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, err := health.NewHealthChecker(config.GetConfig())
			if err != nil {
				return err
			}
			defer checker.Close()

			report, err := checker.CheckHealth(cmd.Context())
			if err != nil {
				fmt.Println("Health check failed: ", err)
				return nil
			}

			fmt.Printf("Status: %s (version %s)\n", report.Status, report.Version)
			fmt.Printf("PDUs: %d\n", report.PDUs)

			states := make([]daemon.State, 0, len(report.States))
			for s := range report.States {
				states = append(states, s)
			}
			slices.Sort(states)
			for _, s := range states {
				fmt.Printf("  %-12s %d\n", s, report.States[s])
			}
			return nil
		},
	}
}
