package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is loaded when present and no other env file is given.
const DefaultEnvFile = ".env"

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// Path is an optional YAML file. Values from the environment override it.
	Path string

	// EnvFile is an optional dotenv file. Variables already set in the
	// process environment win. If empty, DefaultEnvFile is loaded when it
	// exists.
	EnvFile string

	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup LookupFunc

	// SkipKeyring disables the OS keyring fallback for secrets.
	SkipKeyring bool
}

// envVar binds an environment variable (and its aliases) to a field setter.
type envVar struct {
	names []string
	set   func(c *Config, v string) error
}

var envVars = []envVar{
	{[]string{"BOT_TOKEN", "TELEGRAM_BOT_TOKEN"}, func(c *Config, v string) error { c.BotToken = v; return nil }},
	{[]string{"WEBHOOK_SECRET", "TELEGRAM_SECRET_TOKEN"}, func(c *Config, v string) error { c.WebhookSecret = v; return nil }},
	{[]string{"WEBHOOK_URL"}, func(c *Config, v string) error { c.WebhookURL = v; return nil }},
	{[]string{"WEBHOOK_PATH"}, func(c *Config, v string) error { c.WebhookPath = v; return nil }},
	{[]string{"HOST"}, func(c *Config, v string) error { c.Host = v; return nil }},
	{[]string{"PORT"}, func(c *Config, v string) error { return setInt(&c.Port, v) }},
	{[]string{"TELEGRAM_API_URL"}, func(c *Config, v string) error { c.APIURL = v; return nil }},
	{[]string{"SEND_TIMEOUT"}, func(c *Config, v string) error { return setDuration(&c.SendTimeout, v) }},
	{[]string{"WORKERS"}, func(c *Config, v string) error { return setInt(&c.Workers, v) }},
	{[]string{"QUEUE_SIZE"}, func(c *Config, v string) error { return setInt(&c.QueueSize, v) }},
	{[]string{"POLLING_TIMEOUT"}, func(c *Config, v string) error { return setInt(&c.PollingTimeout, v) }},
	{[]string{"WEBHOOK_CHECK"}, func(c *Config, v string) error { c.WebhookCheck = v; return nil }},
	{[]string{"LOG_LEVEL"}, func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{[]string{"OTEL_EXPORTER_OTLP_ENDPOINT"}, func(c *Config, v string) error { c.Tracing.Endpoint = v; return nil }},
	{[]string{"OTEL_SERVICE_NAME"}, func(c *Config, v string) error { c.Tracing.ServiceName = v; return nil }},
}

// Load builds a Config from, in increasing priority: the YAML file, the
// environment (including the dotenv file), and for still-missing secrets
// the OS keyring. Defaults are applied last. Load does not validate.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var cfg Config
	if opts.Path != "" {
		if err := loadFile(opts.Path, lookup, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if !opts.SkipKeyring {
		fillFromKeyring(&cfg)
	}

	cfg.defaults()
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: loading env file %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, lookup LookupFunc, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw, lookup)
	if err != nil {
		return fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with every non-empty recognized variable. For
// aliased variables the first name found wins.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error
	for _, ev := range envVars {
		for _, name := range ev.names {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := ev.set(cfg, v); err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables (no default, no env value).
func expandEnv(raw []byte, lookup LookupFunc) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := lookup(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}

		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q", v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration %q", v)
	}
	*dst = d
	return nil
}
