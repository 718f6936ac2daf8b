// Package config resolves runtime configuration from flags, an optional
// config file, and CRATE_-prefixed environment variables, in that order
// of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration
type Config struct {
	Port     int
	DataDir  string
	MusicDir string
	DBPath   string
}

// Defaults match the container layout: /data for state, /music for the
// read-only library mount.
func setDefaults() {
	viper.SetDefault("port", 4000)
	viper.SetDefault("data-dir", "/data")
	viper.SetDefault("music-dir", "/music")
}

// Init wires viper to the environment. Called once from the root
// command before any subcommand runs.
func Init(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("crate")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CRATE")
	viper.AutomaticEnv()
	setDefaults()

	// A config file is optional; env vars and flags are enough
	_ = viper.ReadInConfig()
}

// Load validates the resolved values and returns the typed config
func Load() (*Config, error) {
	cfg := &Config{
		Port:     viper.GetInt("port"),
		DataDir:  viper.GetString("data-dir"),
		MusicDir: viper.GetString("music-dir"),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data-dir must not be empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "crate.db")

	return cfg, nil
}
