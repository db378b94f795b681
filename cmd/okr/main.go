package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"okr-go/internal/app"
	"okr-go/internal/config"
	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage turns session errors into the instruction to log in again.
func userMessage(err error) string {
	switch {
	case errors.Is(err, okr.ErrNotAuthenticated):
		return "not logged in: run `okr login`"
	case errors.Is(err, okr.ErrUnauthorized):
		return "session expired or rejected: run `okr login`"
	default:
		return err.Error()
	}
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config (run `okr config init` first): %w", err)
	}
	app.ApplyEnv(cfg)
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an OKRApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Login", "Dashboard").
func newApp(operation string) (*app.OKRApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewOKRApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "okr",
	Short:         "OKR dashboard client",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		app.ApplyEnv(cfg)

		sessionType, _ := cmd.Flags().GetString("session")
		if err := applySessionType(cfg, sessionType); err != nil {
			return err
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "API:      %s\n", cfg.APIBaseURL)
		fmt.Fprintf(out, "Base Dir: %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Session:  %s\n", cfg.Session.Type)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", path)
		fmt.Fprintf(out, "API:       %s\n", cfg.APIBaseURL)
		fmt.Fprintf(out, "Base Dir:  %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:   %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Log Level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "Session:   %s %s\n", cfg.Session.Type, cfg.Session.Path)
		fmt.Fprintf(out, "Database:  %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Fprintf(out, "Offline:   %t\n", cfg.Cache.Persist)
		fmt.Fprintf(out, "Poll:      %s\n", cfg.Notifications.PollInterval)
		return nil
	},
}

// applySessionType points cfg at the default location for the chosen store.
func applySessionType(cfg *config.Config, sessionType string) error {
	switch sessionType {
	case "", "file":
	case "age":
		cfg.Session = config.SessionConfig{
			Type:         "age",
			Path:         filepath.Join(cfg.BaseDir, "session.age"),
			IdentityPath: filepath.Join(cfg.BaseDir, "session.key"),
		}
	case "sqlite":
		cfg.Session = config.SessionConfig{Type: "sqlite"}
	default:
		return fmt.Errorf("unknown session type %q (want file, age or sqlite)", sessionType)
	}
	return nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("session", "file", "Session store: file, age or sqlite")

	rootCmd.AddCommand(configCmd)
}
