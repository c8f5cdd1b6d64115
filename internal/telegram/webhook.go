package telegram

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/tgecho/pkg/message"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookReceiver authenticates and normalizes incoming webhook calls and
// pushes actionable updates to the inbox.
type WebhookReceiver struct {
	inbox  func(context.Context, message.Update) error
	logger *slog.Logger
	secret string
}

// NewWebhookReceiver creates a new WebhookReceiver. The secret must be the
// same value passed as secret_token to setWebhook.
func NewWebhookReceiver(inbox func(context.Context, message.Update) error, logger *slog.Logger, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		inbox:  inbox,
		logger: logger,
		secret: secret,
	}
}

// Authorize checks the secret-token header in constant time. A missing
// header never matches.
func (w *WebhookReceiver) Authorize(headers http.Header) error {
	token := headers.Get(SecretTokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Accept parses an already-authorized body and hands the update to the
// inbox. It returns the parsed update alongside ErrMalformedUpdate,
// ErrEmptyUpdate, or the inbox error.
func (w *WebhookReceiver) Accept(ctx context.Context, body []byte) (message.Update, error) {
	update, err := ParseUpdate(body)
	if err != nil {
		return message.Update{}, err
	}

	if !update.Actionable() {
		w.logger.Debug("skipping webhook update", "update_id", update.UpdateID, "chat_id", update.ChatID)
		return update, ErrEmptyUpdate
	}

	if err := w.inbox(ctx, update); err != nil {
		return update, fmt.Errorf("telegram: deliver update %d to inbox: %w", update.UpdateID, err)
	}
	return update, nil
}
