// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/lifecycle"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the PDU daemon is running",
		Run: func(cmd *cobra.Command, args []string) {
			pidFile := config.GetPIDFilePath()
			pid, err := lifecycle.ReadPID(pidFile)
			if err != nil {
				fmt.Println("pdud is not running")
				return
			}

			process, err := os.FindProcess(pid)
			if err == nil && process.Signal(syscall.Signal(0)) == nil {
				fmt.Printf("pdud is running (PID: %d)\n", pid)
				return
			}
			fmt.Printf("pdud is not running (stale pid file %s)\n", pidFile)
		},
	}
}
