package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig with defaults failed: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Archive.BaseURL == "" {
		t.Error("Archive.BaseURL default missing")
	}
	if cfg.Cache.MaxEntries != 512 {
		t.Errorf("Cache.MaxEntries = %d, want 512", cfg.Cache.MaxEntries)
	}
	if cfg.Engine.Debounce != 300*time.Millisecond {
		t.Errorf("Engine.Debounce = %v, want 300ms", cfg.Engine.Debounce)
	}
	if cfg.Window.LookbackDays != 15 {
		t.Errorf("Window.LookbackDays = %d, want 15", cfg.Window.LookbackDays)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("CACHE_MAX_ENTRIES", "32")
	t.Setenv("WINDOW_LOOKBACK_DAYS", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9999" {
		t.Errorf("Server.Port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Cache.MaxEntries != 32 {
		t.Errorf("Cache.MaxEntries = %d, want 32", cfg.Cache.MaxEntries)
	}
	if got := cfg.Window.SpanHours(); got != 7*24 {
		t.Errorf("SpanHours = %d, want %d", got, 7*24)
	}
}

func TestLoadConfigRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production-ish")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig should reject an unknown APP_ENV value")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error should be *ConfigError, got %T", err)
	}
	if cfgErr.Type != ErrValidation {
		t.Errorf("ConfigError.Type = %s, want %s", cfgErr.Type, ErrValidation)
	}
}

func TestLoadConfigRejectsUnparsableDuration(t *testing.T) {
	t.Setenv("ENGINE_DEBOUNCE", "not-a-duration")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig should reject an unparsable duration")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Errorf("want ConfigError type %s, got %v", ErrParsing, err)
	}
}

func TestLoadConfigEnforcesUTC(t *testing.T) {
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if time.Local != time.UTC {
		t.Error("LoadConfig should pin time.Local to UTC")
	}
}
