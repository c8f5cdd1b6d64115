// Package config loads the relay configuration from the environment, an
// optional .env file, an optional YAML file, and the OS keyring.
package config

import "time"

// Delivery modes, derived from WebhookURL.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// WebhookCheckOff disables the scheduled webhook health check.
const WebhookCheckOff = "off"

// Config is the process-wide configuration. It is built once at startup and
// read-only afterwards.
type Config struct {
	// BotToken authenticates outbound Bot API calls. Required.
	BotToken string `yaml:"bot_token"`

	// WebhookSecret is the expected X-Telegram-Bot-Api-Secret-Token value.
	// Required.
	WebhookSecret string `yaml:"webhook_secret"`

	// WebhookURL, when set, is registered with setWebhook at startup.
	// When empty the relay long-polls instead.
	WebhookURL string `yaml:"webhook_url"`

	// WebhookPath is the local route serving webhook calls.
	WebhookPath string `yaml:"webhook_path"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	APIURL string `yaml:"api_url"`

	// SendTimeout bounds each outbound sendMessage call.
	SendTimeout time.Duration `yaml:"send_timeout"`

	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	// PollingTimeout is the getUpdates long-poll timeout in seconds.
	PollingTimeout int `yaml:"polling_timeout"`

	// WebhookCheck is a cron expression for the webhook health job, or
	// "off". Only used in webhook mode.
	WebhookCheck string `yaml:"webhook_check"`

	LogLevel string `yaml:"log_level"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OTLP/HTTP trace export. An empty Endpoint
// disables tracing.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook"
	}
	if c.Port == 0 {
		c.Port = 10000
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.WebhookCheck == "" {
		c.WebhookCheck = "*/10 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "tgecho"
	}
}

// Mode reports whether updates arrive by webhook or by long-polling.
func (c *Config) Mode() string {
	if c.WebhookURL != "" {
		return ModeWebhook
	}
	return ModePolling
}

// Redacted returns a copy safe to print, with secrets masked.
func (c Config) Redacted() Config {
	if c.BotToken != "" {
		c.BotToken = "***"
	}
	if c.WebhookSecret != "" {
		c.WebhookSecret = "***"
	}
	return c
}
