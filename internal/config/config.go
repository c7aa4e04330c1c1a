// Package config loads tool-level settings: defaults, an optional
// stagehand.yaml file and STAGEHAND_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is used for the config file name.
	AppName = "stagehand"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "STAGEHAND"
)

// AppConfig holds the tool configuration. Per-run flags override it.
type AppConfig struct {
	Debug       bool   `mapstructure:"debug"`
	LogFormat   string `mapstructure:"log_format"`
	Concurrency int    `mapstructure:"concurrency"`
	GracePeriod string `mapstructure:"grace_period"`
	StepTimeout string `mapstructure:"step_timeout"`
	WorkDir     string `mapstructure:"work_dir"`
}

// GracePeriodDuration parses the cancellation grace period.
func (c AppConfig) GracePeriodDuration() (time.Duration, error) {
	return time.ParseDuration(c.GracePeriod)
}

// StepTimeoutDuration parses the default per-step timeout. Zero disables it.
func (c AppConfig) StepTimeoutDuration() (time.Duration, error) {
	if c.StepTimeout == "" || c.StepTimeout == "0" {
		return 0, nil
	}
	return time.ParseDuration(c.StepTimeout)
}

// Load reads configuration. cfgFile may be empty, in which case the
// default search paths are used and a missing file is not an error.
func Load(cfgFile string) (AppConfig, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("concurrency", 4)
	v.SetDefault("grace_period", "5s")
	v.SetDefault("step_timeout", "")
	v.SetDefault("work_dir", ".")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + AppName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return AppConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}
