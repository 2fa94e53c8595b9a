// Package config loads runtime configuration from config.yaml, environment
// variables, and defaults, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	DBDir  string `mapstructure:"db_dir"`
	DBFile string `mapstructure:"db_file"`

	// PollIntervalSeconds is the snapshot cadence of the poller.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// CommandTimeoutSeconds bounds each relayed host command.
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`
	// HistoryMaxDays is the retention window of the process history.
	HistoryMaxDays int `mapstructure:"history_max_days"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// Load reads config from file (./config.yaml or ~/.procwatch/config.yaml)
// and falls back to defaults. Environment variables with prefix PROCWATCH_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server_host", "127.0.0.1")
	v.SetDefault("server_port", 8090)
	v.SetDefault("db_dir", ".")
	v.SetDefault("db_file", "procwatch.db")
	v.SetDefault("poll_interval_seconds", 2)
	v.SetDefault("command_timeout_seconds", 5)
	v.SetDefault("history_max_days", 7)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.procwatch")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PROCWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
