package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/flemzord/tgecho/internal/config"
	"github.com/flemzord/tgecho/internal/core"
	"github.com/flemzord/tgecho/internal/cron"
	"github.com/flemzord/tgecho/internal/gateway"
	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/internal/reply"
	"github.com/flemzord/tgecho/internal/telegram"
	"github.com/flemzord/tgecho/internal/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// allowedUpdates restricts Telegram to the only update kind the relay acts on.
var allowedUpdates = []string{"message"}

// BuildOptions carries process-level collaborators for Build.
type BuildOptions struct {
	Logger  *slog.Logger
	Version string

	// Metrics defaults to a registry with runtime collectors.
	Metrics *metrics.Metrics

	// TraceExporter replaces the OTLP exporter, mainly for tests.
	TraceExporter sdktrace.SpanExporter

	// OnResult observes every delivery attempt.
	OnResult func(reply.Result)
}

// Relay holds the wired components. App starts and stops them in order.
type Relay struct {
	Config     *config.Config
	Client     *telegram.Client
	Metrics    *metrics.Metrics
	Dispatcher *reply.Dispatcher
	Gateway    *gateway.Gateway
	Poller     *telegram.Poller
	Scheduler  *cron.Scheduler
	App        *core.App

	// Bot is filled by getMe during start.
	Bot *telegram.User
}

// Build wires every component for cfg without starting anything. Start
// order: telemetry, dispatcher, HTTP gateway, Bot API registration, then
// the poller (polling mode) or the webhook health job (webhook mode).
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Relay, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	tp, err := telemetry.Setup(ctx, cfg.Tracing, telemetry.Options{
		Version:  opts.Version,
		Exporter: opts.TraceExporter,
	})
	if err != nil {
		return nil, err
	}

	client := NewClient(cfg)

	dispatcher, err := reply.NewDispatcher(reply.Config{
		Sender:      client,
		WorkerCount: cfg.Workers,
		InboxSize:   cfg.QueueSize,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger.With("component", "reply"),
		Metrics:     m,
		Tracer:      tp.Tracer(),
		OnResult:    opts.OnResult,
	})
	if err != nil {
		return nil, err
	}

	receiver := telegram.NewWebhookReceiver(dispatcher.Submit, logger.With("component", "webhook"), cfg.WebhookSecret)
	gw := gateway.New(gateway.Config{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		WebhookPath:     cfg.WebhookPath,
		Mode:            cfg.Mode(),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, gateway.Options{
		Receiver: receiver,
		Metrics:  m,
		Tracer:   tp.Tracer(),
		Logger:   logger.With("component", "gateway"),
	})

	r := &Relay{
		Config:     cfg,
		Client:     client,
		Metrics:    m,
		Dispatcher: dispatcher,
		Gateway:    gw,
		App:        core.NewApp(logger, cfg.ShutdownTimeout),
	}

	r.App.Add("telemetry", core.Hooks{OnStop: tp.Shutdown})
	r.App.Add("dispatcher", core.Hooks{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start(ctx)
			return nil
		},
		OnStop: dispatcher.Stop,
	})
	r.App.Add("gateway", gw)
	r.App.Add("registration", core.Hooks{OnStart: func(ctx context.Context) error {
		return r.register(ctx, logger)
	}})

	switch cfg.Mode() {
	case config.ModePolling:
		r.Poller = telegram.NewPoller(client, dispatcher.Submit, logger.With("component", "poller"), m, telegram.PollerConfig{
			Timeout:        cfg.PollingTimeout,
			AllowedUpdates: allowedUpdates,
		})
		r.App.Add("poller", core.Hooks{
			OnStart: func(ctx context.Context) error {
				r.Poller.Start(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				r.Poller.Stop()
				return nil
			},
		})
	case config.ModeWebhook:
		if cfg.WebhookCheck != config.WebhookCheckOff {
			r.Scheduler = cron.NewScheduler(logger.With("component", "cron"))
			if err := r.Scheduler.RegisterJob(&cron.WebhookHealthJob{
				API:          client,
				URL:          cfg.WebhookURL,
				Secret:       cfg.WebhookSecret,
				Logger:       logger.With("component", "cron"),
				ScheduleExpr: cfg.WebhookCheck,
			}); err != nil {
				return nil, err
			}
			r.App.Add("cron", r.Scheduler)
		}
	}

	return r, nil
}

// register verifies the token with getMe, then either registers the
// webhook with its secret token or removes any webhook so getUpdates works.
func (r *Relay) register(ctx context.Context, logger *slog.Logger) error {
	bot, err := r.Client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("app: verifying bot token: %w", err)
	}
	r.Bot = bot
	r.Dispatcher.SetBotUsername(bot.Username)
	logger.Info("bot identified", "username", bot.Username, "id", bot.ID)

	if r.Config.Mode() == config.ModeWebhook {
		if err := r.Client.SetWebhook(ctx, telegram.SetWebhookRequest{
			URL:            r.Config.WebhookURL,
			SecretToken:    r.Config.WebhookSecret,
			AllowedUpdates: allowedUpdates,
		}); err != nil {
			return fmt.Errorf("app: registering webhook: %w", err)
		}
		logger.Info("webhook registered", "url", r.Config.WebhookURL)
		return nil
	}

	if err := r.Client.DeleteWebhook(ctx, telegram.DeleteWebhookRequest{}); err != nil {
		return fmt.Errorf("app: removing webhook for polling: %w", err)
	}
	logger.Info("webhook removed, long-polling for updates")
	return nil
}
