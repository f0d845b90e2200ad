// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stratastor/pdud/internal/common"
)

var (
	configDir string // Directory for configuration files
	runDir    string // Directory for the pid file
	logDir    string // Directory for the detached daemon's output
)

func init() {
	if os.Geteuid() == 0 {
		configDir = "/etc/pdud"
		runDir = "/var/run/pdud"
		logDir = "/var/log/pdud"
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		configDir = filepath.Join(homeDir, ".pdud")
		runDir = configDir
		logDir = configDir
	}

	// Ensure the directories exist
	if err := EnsureDirectories(); err != nil {
		panic(fmt.Sprintf("failed to ensure configuration directories: %v", err))
	}
}

// GetConfigDir returns the appropriate configuration directory
// If running as root, it returns the system config directory
// Otherwise, it returns the user config directory
func GetConfigDir() string {
	return configDir
}

// GetPIDFilePath returns where the serving daemon records its pid
func GetPIDFilePath() string {
	return filepath.Join(runDir, "pdud.pid")
}

// GetLogFilePath returns where a detached daemon writes its output
func GetLogFilePath() string {
	return filepath.Join(logDir, "pdud.log")
}

// EnsureDirectories creates necessary directories if they do not exist
func EnsureDirectories() error {
	for _, dir := range []string{configDir, runDir, logDir} {
		if err := common.EnsureDir(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
