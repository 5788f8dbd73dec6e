// Package config handles loading and validation of the bot's runtime
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigPath is checked when no path is given on the command line.
const DefaultConfigPath = "/etc/aviary/aviary.yaml"

// Config holds everything needed to run the bot.
type Config struct {
	// BotToken authenticates both the gateway index lookup and the
	// websocket handshake.
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`

	// APIBaseURL is the base URL of the bot platform's REST API.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`

	// LogLevel controls slog verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// HealthAddr is the listen address for the /healthz and /statusz
	// endpoints. Empty disables the health server.
	HealthAddr string `mapstructure:"health_addr" yaml:"health_addr"`
}

// Load reads configuration from configPath (falling back to
// DefaultConfigPath when empty), with AVIARY_*-prefixed environment
// variables overriding file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_base_url", "https://api.example.com/v3")
	v.SetDefault("log_level", "info")
	v.SetDefault("health_addr", ":8080")

	if configPath == "" {
		configPath = DefaultConfigPath
	}
	v.SetConfigFile(configPath)

	v.SetEnvPrefix("AVIARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"bot_token":    "AVIARY_BOT_TOKEN",
		"api_base_url": "AVIARY_API_BASE_URL",
		"log_level":    "AVIARY_LOG_LEVEL",
		"health_addr":  "AVIARY_HEALTH_ADDR",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	// BOT_TOKEN (unprefixed) is accepted as an alias, matching how most
	// bot platforms document the token environment variable.
	_ = v.BindEnv("bot_token", "BOT_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if pathErr, ok := err.(*os.PathError); !ok || !os.IsNotExist(pathErr) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are present.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("bot_token is required (set AVIARY_BOT_TOKEN or BOT_TOKEN)")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	return nil
}
