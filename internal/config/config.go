// Package config loads storyteller settings from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file base name looked up in the working directory and $HOME.
const FileName = ".storyteller"

// EnvPrefix prefixes environment overrides, e.g. STORYTELLER_SANDBOX_TIMEOUT.
const EnvPrefix = "STORYTELLER"

// Config is the full storyteller configuration.
type Config struct {
	Logging     LoggingConfig    `mapstructure:"logging"`
	Extractor   string           `mapstructure:"extractor" validate:"oneof=lexical syntax"`
	Variables   VariablesConfig  `mapstructure:"variables"`
	SideEffects SideEffectConfig `mapstructure:"sideEffects"`
	Sandbox     SandboxConfig    `mapstructure:"sandbox"`
	Reports     ReportsConfig    `mapstructure:"reports"`
	Archive     ArchiveConfig    `mapstructure:"archive"`
	Server      ServerConfig     `mapstructure:"server"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// VariablesConfig bounds variable histories.
type VariablesConfig struct {
	MaxHistory int `mapstructure:"maxHistory" validate:"gt=0"`
}

// SideEffectConfig sets the side-effect retention policy. Zero keeps everything.
type SideEffectConfig struct {
	MaxRetained int `mapstructure:"maxRetained" validate:"gte=0"`
}

// SandboxConfig bounds what-if runs.
type SandboxConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ReportsConfig locates stored what-if results.
type ReportsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// ArchiveConfig locates the debug session archive.
type ArchiveConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig configures the visualization server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Extractor: "lexical",
		Variables: VariablesConfig{
			MaxHistory: 1000,
		},
		SideEffects: SideEffectConfig{
			MaxRetained: 0,
		},
		Sandbox: SandboxConfig{
			Timeout: 10 * time.Second,
		},
		Reports: ReportsConfig{
			Dir: ".storyteller/reports",
		},
		Archive: ArchiveConfig{
			Path: ".storyteller/sessions.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7878",
		},
	}
}

// Load reads configuration. An explicit path must exist; otherwise the file is
// searched in the working directory and $HOME and defaults apply when absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("extractor", cfg.Extractor)
	v.SetDefault("variables.maxHistory", cfg.Variables.MaxHistory)
	v.SetDefault("sideEffects.maxRetained", cfg.SideEffects.MaxRetained)
	v.SetDefault("sandbox.timeout", cfg.Sandbox.Timeout)
	v.SetDefault("reports.dir", cfg.Reports.Dir)
	v.SetDefault("archive.path", cfg.Archive.Path)
	v.SetDefault("server.addr", cfg.Server.Addr)
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}
