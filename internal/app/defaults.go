package app

import (
	"fmt"
	"os"
	"path/filepath"

	"okr-go/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - OKR_CONFIG_PATH: config file location (default: ~/.config/okr.toml)
//   - OKR_HOME: base directory for okr data (default: ~/.local/share/okr)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("OKR_CONFIG_PATH", ".config", "okr.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome("OKR_HOME", ".local", "share", "okr")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// ApplyEnv overrides config values set by the deployment environment.
// OKR_API_URL replaces api_base_url.
func ApplyEnv(cfg *config.Config) {
	if u := os.Getenv("OKR_API_URL"); u != "" {
		cfg.APIBaseURL = u
	}
}

// fromEnvOrHome returns $env when set, else the path under the home directory.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
