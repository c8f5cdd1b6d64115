package telegram

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/pkg/message"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// PollerConfig holds the long-polling parameters.
type PollerConfig struct {
	// Timeout is the getUpdates long-poll timeout in seconds.
	Timeout int
	// AllowedUpdates restricts the update kinds Telegram sends.
	AllowedUpdates []string
	// ErrorPause is how long polling pauses after repeated failures.
	// Zero means 30s.
	ErrorPause time.Duration
}

// Poller implements long-polling for receiving Telegram updates. It is the
// alternative producer to WebhookReceiver and feeds the same inbox.
type Poller struct {
	client  *Client
	inbox   func(context.Context, message.Update) error
	logger  *slog.Logger
	metrics *metrics.Metrics
	config  PollerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a new Poller.
func NewPoller(client *Client, inbox func(context.Context, message.Update) error, logger *slog.Logger, m *metrics.Metrics, config PollerConfig) *Poller {
	if config.ErrorPause <= 0 {
		config.ErrorPause = errorPauseDuration
	}
	return &Poller{
		client:  client,
		inbox:   inbox,
		logger:  logger,
		metrics: m,
		config:  config,
	}
}

// Start launches the polling loop in a goroutine. The loop ends when ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop cancels the polling loop and waits for it to finish.
// It is safe to call Stop multiple times, or before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	var offset int
	var consecutiveErrors int

	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.Timeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", p.config.ErrorPause,
				)
				timer := time.NewTimer(p.config.ErrorPause)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handleUpdate(ctx, &updates[i])
		}
	}
}

// handleUpdate processes a single update.
func (p *Poller) handleUpdate(ctx context.Context, update *Update) {
	msg, err := Normalize(update)
	if err != nil {
		p.metrics.RecordUpdate(metrics.SourcePolling, metrics.ResultMalformed)
		p.logger.Debug("skipping update", "update_id", update.UpdateID, "reason", err)
		return
	}
	if !msg.Actionable() {
		p.metrics.RecordUpdate(metrics.SourcePolling, metrics.ResultEmpty)
		p.logger.Debug("skipping update without chat or text", "update_id", update.UpdateID)
		return
	}

	if err := p.inbox(ctx, msg); err != nil {
		p.metrics.RecordUpdate(metrics.SourcePolling, metrics.ResultDropped)
		p.logger.Error("failed to deliver update to inbox",
			"update_id", update.UpdateID,
			"error", err,
		)
		return
	}
	p.metrics.RecordUpdate(metrics.SourcePolling, metrics.ResultAccepted)
}
