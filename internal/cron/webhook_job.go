package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/tgecho/internal/telegram"
)

// WebhookAPI is the subset of the Bot API client the webhook job needs.
type WebhookAPI interface {
	GetWebhookInfo(ctx context.Context) (*telegram.WebhookInfo, error)
	SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error
}

// WebhookHealthJob checks the webhook registration reported by Telegram and
// registers it again when the URL no longer matches, for example after
// another process called setWebhook or deleteWebhook with the same token.
type WebhookHealthJob struct {
	API          WebhookAPI
	URL          string
	Secret       string
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*WebhookHealthJob)(nil)

// Name implements Job.
func (j *WebhookHealthJob) Name() string { return "webhook_health" }

// Schedule implements Job.
func (j *WebhookHealthJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run fetches webhook info and restores the registration on drift.
func (j *WebhookHealthJob) Run(ctx context.Context) error {
	info, err := j.API.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("cron: getWebhookInfo: %w", err)
	}

	if info.LastErrorMessage != "" {
		j.Logger.Warn("cron: telegram reports webhook delivery errors",
			"last_error", info.LastErrorMessage,
			"last_error_date", info.LastErrorDate,
			"pending_updates", info.PendingUpdateCount,
		)
	} else {
		j.Logger.Debug("cron: webhook healthy", "pending_updates", info.PendingUpdateCount)
	}

	if info.URL == j.URL {
		return nil
	}

	j.Logger.Warn("cron: webhook URL drifted, registering again", "registered", info.URL, "want", j.URL)
	if err := j.API.SetWebhook(ctx, telegram.SetWebhookRequest{
		URL:            j.URL,
		SecretToken:    j.Secret,
		AllowedUpdates: []string{"message"},
	}); err != nil {
		return fmt.Errorf("cron: setWebhook: %w", err)
	}
	return nil
}
