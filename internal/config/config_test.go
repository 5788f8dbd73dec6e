package config

import (
	"os"
	"testing"
)

func TestLoadRequiresBotToken(t *testing.T) {
	os.Unsetenv("AVIARY_BOT_TOKEN")
	os.Unsetenv("BOT_TOKEN")

	if _, err := Load("/nonexistent/aviary.yaml"); err == nil {
		t.Fatal("expected error when no bot token is configured")
	}
}

func TestLoadReadsBotTokenFromEnv(t *testing.T) {
	t.Setenv("AVIARY_BOT_TOKEN", "tok-from-env")

	cfg, err := Load("/nonexistent/aviary.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "tok-from-env" {
		t.Fatalf("expected bot token from env, got %q", cfg.BotToken)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestLoadAcceptsUnprefixedBotTokenAlias(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok-unprefixed")

	cfg, err := Load("/nonexistent/aviary.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BotToken != "tok-unprefixed" {
		t.Fatalf("expected bot token from BOT_TOKEN alias, got %q", cfg.BotToken)
	}
}
