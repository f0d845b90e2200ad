// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/internal/common"
	"github.com/stratastor/pdud/internal/constants"
	"gopkg.in/yaml.v3"
)

var (
	mu         sync.RWMutex
	instance   *Config
	once       sync.Once
	configPath string // Tracks where the config was loaded from
)

type Config struct {
	Server struct {
		Port      int    `mapstructure:"port"`
		LogLevel  string `mapstructure:"logLevel"`
		Daemonize bool   `mapstructure:"daemonize"`
	} `mapstructure:"server"`

	Health struct {
		Interval string `mapstructure:"interval"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"health"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel"`
		EnableSentry bool   `mapstructure:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN"`
	} `mapstructure:"logger"`

	// Daemon holds the worker timings. Durations use time.ParseDuration syntax.
	Daemon struct {
		PollingInterval        string `mapstructure:"pollingInterval" yaml:"pollingInterval"`
		ConstructionBackoff    string `mapstructure:"constructionBackoff" yaml:"constructionBackoff"`
		MaxConsecutiveFailures int    `mapstructure:"maxConsecutiveFailures" yaml:"maxConsecutiveFailures"`
		Tick                   string `mapstructure:"tick" yaml:"tick"`
		ReconcileInterval      string `mapstructure:"reconcileInterval" yaml:"reconcileInterval"`
	} `mapstructure:"daemon" yaml:"daemon"`

	PDUs []PDU `mapstructure:"pdus" yaml:"pdus"`

	Environment string `mapstructure:"environment" yaml:"environment"`
}

// PDU is one inventory entry. Name is kept out of the map keys since viper
// lowercases those.
type PDU struct {
	Name            string                 `mapstructure:"name" yaml:"name"`
	Driver          string                 `mapstructure:"driver" yaml:"driver"`
	Config          map[string]interface{} `mapstructure:"config" yaml:"config"`
	ReservedPortIDs []string               `mapstructure:"reservedPortIDs" yaml:"reservedPortIDs"`
	PollingInterval string                 `mapstructure:"pollingInterval" yaml:"pollingInterval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("server.port", 8044)
	v.SetDefault("server.logLevel", "debug")
	v.SetDefault("server.daemonize", false)
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.endpoint", constants.HealthPath)
	v.SetDefault("logger.logLevel", "debug")
	v.SetDefault("logger.enableSentry", false)
	v.SetDefault("logger.sentryDSN", "")

	v.SetDefault("daemon.pollingInterval", "10s")
	v.SetDefault("daemon.constructionBackoff", "15s")
	v.SetDefault("daemon.maxConsecutiveFailures", 3)
	v.SetDefault("daemon.tick", "1s")
	v.SetDefault("daemon.reconcileInterval", "60s")
	v.SetDefault("pdus", []PDU{})
}

// LoadConfig loads the configuration with precedence rules.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		// Setup basic logger for initialization
		logConfig := logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
		l, err := logger.NewTag(logConfig, "config")
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}

		// Reset viper to avoid any potential carryover
		viper.Reset()
		viper.SetConfigType("yaml")

		// Determine which config file to use with clear priorities
		systemConfigPath := filepath.Join(GetConfigDir(), constants.ConfigFileName)

		if configFilePath != "" {
			// 1. Priority: Explicit path from command line
			configPath = configFilePath
			if expanded, err := common.ExpandPath(configFilePath); err == nil {
				configPath = expanded
			}
		} else if envPath := os.Getenv(constants.EnvPrefix + "_CONFIG"); envPath != "" {
			// 2. Priority: Environment variable
			configPath = envPath
		} else {
			// 3. Priority: Always default to system-wide config
			configPath = systemConfigPath
		}

		l.Info("Using config file", "path", configPath)

		// Convert to absolute path if possible for consistency
		absPath, err := filepath.Abs(configPath)
		if err == nil {
			configPath = absPath
		}

		viper.SetConfigFile(configPath)
		setDefaults(viper.GetViper())

		// Bind environment variables
		viper.AutomaticEnv()
		viper.SetEnvPrefix(constants.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		err = viper.ReadInConfig()

		var cfg Config
		if uerr := viper.Unmarshal(&cfg); uerr != nil {
			l.Error("Failed to parse configuration", "err", uerr)
		}
		instance = &cfg

		if err != nil {
			if os.IsNotExist(err) || isNotFound(err) {
				l.Info("Config file not found, creating default", "path", configPath)

				if err := SaveConfig(configPath); err != nil {
					l.Error("Failed to save default configuration", "err", err)
				}
			} else {
				// Parse error etc., keep running on defaults
				l.Error("Error reading config file", "err", err)
			}
		} else {
			l.Info("Config file loaded successfully", "path", viper.ConfigFileUsed())
			configPath = viper.ConfigFileUsed()
		}

		debugCfg := *instance
		debugCfg.Logger.SentryDSN = "[REDACTED]"
		l.Debug("Loaded configuration",
			"config", fmt.Sprintf("%+v", debugCfg),
			"pdus", len(instance.PDUs))
	})

	mu.RLock()
	defer mu.RUnlock()
	return instance
}

func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

// Reload re-reads the loaded config file and swaps the instance. The previous
// configuration stays in effect if the file cannot be read or parsed.
func Reload() (*Config, error) {
	GetConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(GetLoadedConfigPath())
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()

	return &cfg, nil
}

// SaveConfig persists the current configuration to a specified path.
func SaveConfig(path string) error {
	if path == "" {
		path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
	}

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	mu.RLock()
	configYAML, err := yaml.Marshal(instance)
	mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if err := os.WriteFile(path, configYAML, 0644); err != nil {
		return fmt.Errorf("failed to write configuration to file: %w", err)
	}

	// Update the tracked config path
	configPath = path

	return nil
}

// UpdatePDUs replaces the inventory section of the loaded configuration and
// writes it back to the file it was loaded from.
func UpdatePDUs(pdus []PDU) error {
	GetConfig()

	mu.Lock()
	cfg := *instance
	cfg.PDUs = pdus
	instance = &cfg
	mu.Unlock()

	return SaveConfig(GetLoadedConfigPath())
}

// GetLoadedConfigPath returns the path of the currently loaded configuration file.
func GetLoadedConfigPath() string {
	return configPath
}

// GetConfig returns the current configuration instance.
func GetConfig() *Config {
	mu.RLock()
	cfg := instance
	mu.RUnlock()

	if cfg == nil {
		return LoadConfig("")
	}
	return cfg
}

func NewLoggerConfig(cfg *Config) logger.Config {
	if cfg == nil {
		return logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
	}

	return logger.Config{
		LogLevel:     cfg.Logger.LogLevel,
		EnableSentry: cfg.Logger.EnableSentry,
		SentryDSN:    cfg.Logger.SentryDSN,
	}
}
