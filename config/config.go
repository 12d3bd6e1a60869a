package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/project-ardeck/ardeck-plugin-sdk/logging"
	"github.com/project-ardeck/ardeck-plugin-sdk/manifest"
	"github.com/project-ardeck/ardeck-plugin-sdk/wsconn"
)

// FileName is the optional config file looked up without extension.
const FileName = "ardeck-plugin"

// EnvPrefix prefixes every environment override, e.g. ARDECK_LOG_LEVEL.
const EnvPrefix = "ARDECK"

// Config holds the runtime settings of a plugin process.
// Values come from defaults, an optional ardeck-plugin.yaml and ARDECK_*
// environment variables, in increasing priority.
type Config struct {
	LogDir      string `mapstructure:"log_dir" validate:"required"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogMaxFiles int    `mapstructure:"log_max_files" validate:"min=1"`

	ManifestPath   string        `mapstructure:"manifest_path" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`

	// MetricsAddr enables a Prometheus /metrics listener when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads the configuration. searchPaths lists directories searched for
// ardeck-plugin.yaml; the executable's directory and the working directory
// are used when none are given.
func Load(searchPaths ...string) (*Config, error) {
	exeDir, err := executableDir()
	if err != nil {
		return nil, err
	}
	if len(searchPaths) == 0 {
		searchPaths = []string{exeDir, "."}
	}

	v := viper.New()

	v.SetDefault("log_dir", filepath.Join(exeDir, "logs"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_max_files", logging.DefaultMaxFiles)
	v.SetDefault("manifest_path", filepath.Join(exeDir, manifest.FileName))
	v.SetDefault("connect_timeout", wsconn.DefaultHandshakeTimeout)
	v.SetDefault("metrics_addr", "")

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	return filepath.Dir(exe), nil
}
