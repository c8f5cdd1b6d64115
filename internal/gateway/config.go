package gateway

import "time"

// DefaultMaxBodyBytes caps webhook bodies. Larger bodies are treated as
// malformed.
const DefaultMaxBodyBytes = 1 << 20

// Config holds HTTP gateway configuration.
type Config struct {
	Addr            string
	WebhookPath     string
	Mode            string
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":10000"
	}
	if c.WebhookPath == "" {
		c.WebhookPath = "/webhook"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
