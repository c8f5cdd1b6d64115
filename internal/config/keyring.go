package config

import "github.com/zalando/go-keyring"

// KeyringService is the OS keyring service name holding relay secrets.
const KeyringService = "tgecho"

// Keyring accounts for the secrets that may be stored there.
const (
	KeyringBotToken      = "bot_token"
	KeyringWebhookSecret = "webhook_secret"
)

// KeyringAccounts lists the accounts accepted by SetSecret.
var KeyringAccounts = []string{KeyringBotToken, KeyringWebhookSecret}

// fillFromKeyring fills secrets still empty after file and environment.
// Lookup failures are ignored: headless hosts usually have no keyring and
// Validate reports whatever is still missing.
func fillFromKeyring(cfg *Config) {
	if cfg.BotToken == "" {
		if v, err := keyring.Get(KeyringService, KeyringBotToken); err == nil {
			cfg.BotToken = v
		}
	}
	if cfg.WebhookSecret == "" {
		if v, err := keyring.Get(KeyringService, KeyringWebhookSecret); err == nil {
			cfg.WebhookSecret = v
		}
	}
}

// SetSecret stores a secret in the OS keyring.
func SetSecret(account, value string) error {
	return keyring.Set(KeyringService, account, value)
}
