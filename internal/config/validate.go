package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
	tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

	// secretPattern is the character set setWebhook accepts for secret_token.
	secretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)
)

// ErrMissing is wrapped by errors about absent required settings.
var ErrMissing = errors.New("required setting missing")

// Validate checks that cfg is complete and consistent. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.BotToken == "" {
		errs = append(errs, fmt.Errorf("config: BOT_TOKEN: %w", ErrMissing))
	} else if !tokenPattern.MatchString(cfg.BotToken) {
		errs = append(errs, errors.New("config: BOT_TOKEN format invalid (expected <bot_id>:<hash>)"))
	}

	if cfg.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("config: WEBHOOK_SECRET: %w", ErrMissing))
	} else if !secretPattern.MatchString(cfg.WebhookSecret) {
		errs = append(errs, errors.New("config: WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ and -"))
	}

	if cfg.WebhookURL != "" {
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: WEBHOOK_URL must be an absolute https URL, got %q", cfg.WebhookURL))
		}
	}

	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("config: webhook_path must start with /, got %q", cfg.WebhookPath))
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT must be 1-65535, got %d", cfg.Port))
	}

	if u, err := url.Parse(cfg.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("config: api_url must be a valid http/https URL, got %q", cfg.APIURL))
	}

	if cfg.SendTimeout < time.Second || cfg.SendTimeout > time.Minute {
		errs = append(errs, fmt.Errorf("config: SEND_TIMEOUT must be 1s-60s, got %s", cfg.SendTimeout))
	}

	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("config: workers must be positive, got %d", cfg.Workers))
	}
	if cfg.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("config: queue_size must be positive, got %d", cfg.QueueSize))
	}

	if cfg.PollingTimeout < 0 || cfg.PollingTimeout > 50 {
		errs = append(errs, fmt.Errorf("config: polling_timeout must be 0-50, got %d", cfg.PollingTimeout))
	}

	if cfg.WebhookCheck != WebhookCheckOff {
		if _, err := cron.ParseStandard(cfg.WebhookCheck); err != nil {
			errs = append(errs, fmt.Errorf("config: webhook_check: %w", err))
		}
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", name)
	}
	return level, nil
}
