package app

import (
	"os"
	"path/filepath"
	"testing"

	"okr-go/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("OKR_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("OKR_HOME", "/custom/okr")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := map[string]string{
			"config_path": "/custom/config.toml",
			"base_dir":    "/custom/okr",
			"log_dir":     "/custom/okr/log",
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("OKR_CONFIG_PATH", "")
		t.Setenv("OKR_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		wantBase := filepath.Join(homeDir, ".local", "share", "okr")
		want := map[string]string{
			"config_path": filepath.Join(homeDir, ".config", "okr.toml"),
			"base_dir":    wantBase,
			"log_dir":     filepath.Join(wantBase, "log"),
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides api base url", func(t *testing.T) {
		t.Setenv("OKR_API_URL", "https://okr.example.com")
		cfg := config.NewConfig(t.TempDir())
		ApplyEnv(cfg)
		if cfg.APIBaseURL != "https://okr.example.com" {
			t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
		}
	})

	t.Run("keeps config value when unset", func(t *testing.T) {
		t.Setenv("OKR_API_URL", "")
		cfg := config.NewConfig(t.TempDir())
		ApplyEnv(cfg)
		if cfg.APIBaseURL != config.DefaultAPIBaseURL {
			t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
		}
	})
}
