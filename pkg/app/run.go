// Package app provides the shared entry point for the tgecho binary: it
// loads configuration, wires the relay and runs it until shutdown.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/tgecho/internal/config"
	"github.com/flemzord/tgecho/internal/security"
	"github.com/flemzord/tgecho/internal/telegram"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an optional YAML configuration file.
	ConfigPath string

	// EnvFile is an optional dotenv file. Empty loads ./.env when present.
	EnvFile string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// LoadConfig loads and validates the configuration described by params.
func LoadConfig(params RunParams) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    params.ConfigPath,
		EnvFile: params.EnvFile,
	})
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger. The bot token and webhook secret are
// registered as literal redactions on top of the default token patterns.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	redactor := security.NewRedactor()
	redactor.AddLiteral(cfg.BotToken)
	redactor.AddLiteral(cfg.WebhookSecret)

	return security.NewLogger(w, level, redactor), nil
}

// NewClient returns a Bot API client for cfg.
func NewClient(cfg *config.Config) *telegram.Client {
	return telegram.NewClient(cfg.BotToken, cfg.APIURL)
}

// Run loads configuration, starts the relay, and blocks until ctx is
// cancelled or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	cfg, err := LoadConfig(params)
	if err != nil {
		return err
	}

	logger, err := NewLogger(cfg, params.LogOutput)
	if err != nil {
		return err
	}
	logger.Info("tgecho starting",
		"version", params.Version,
		"commit", params.Commit,
		"mode", cfg.Mode(),
	)

	relay, err := Build(ctx, cfg, BuildOptions{Logger: logger, Version: params.Version})
	if err != nil {
		return err
	}
	return relay.App.Run(ctx)
}
