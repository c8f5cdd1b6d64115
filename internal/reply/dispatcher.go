package reply

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/pkg/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultInboxSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// Sender delivers one reply to the Bot API.
type Sender interface {
	SendReply(ctx context.Context, r message.Reply) error
}

// Result describes one delivery attempt. Err is nil when the reply was sent.
type Result struct {
	DeliveryID string
	Update     message.Update
	Reply      message.Reply
	Err        error
	Duration   time.Duration
}

// Config holds the configuration for a Dispatcher.
type Config struct {
	Sender      Sender
	WorkerCount int
	InboxSize   int
	// SendTimeout bounds each outbound call.
	SendTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	// BotUsername, when known, limits "/cmd@name" commands to this bot.
	// It can also be set later with SetBotUsername.
	BotUsername string
	// OnResult, if set, is called after every delivery attempt.
	OnResult func(Result)
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return c
}

// queued is one inbox entry. link points at the span that accepted the
// update so that the delivery span can be correlated with it.
type queued struct {
	update message.Update
	link   trace.SpanContext
}

// Dispatcher turns updates into replies and sends them. Producers call
// Submit, which never blocks; workers deliver each reply exactly once.
// Delivery failures are logged, counted and reported to OnResult but never
// returned to the producer.
type Dispatcher struct {
	config   Config
	inbox    chan queued
	inboxMu  sync.RWMutex
	pool     *WorkerPool
	cancel   context.CancelFunc
	stopOnce sync.Once
	started  atomic.Bool
	stopped  atomic.Bool
	logger   *slog.Logger
	username atomic.Pointer[string]
}

// NewDispatcher creates a new Dispatcher with the given configuration.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	if cfg.Sender == nil {
		return nil, ErrNoSender
	}
	d := &Dispatcher{
		config: cfg,
		inbox:  make(chan queued, cfg.InboxSize),
		pool:   NewWorkerPool(cfg.WorkerCount),
		logger: cfg.Logger,
	}
	d.SetBotUsername(cfg.BotUsername)
	return d, nil
}

// SetBotUsername records the bot's username, as reported by getMe.
func (d *Dispatcher) SetBotUsername(name string) {
	name = strings.TrimPrefix(name, "@")
	d.username.Store(&name)
}

// BotUsername returns the username set with SetBotUsername, or "".
func (d *Dispatcher) BotUsername() string {
	if p := d.username.Load(); p != nil {
		return *p
	}
	return ""
}

// Start launches the worker pool. Sends run on a context detached from ctx's
// cancellation so that an in-flight reply is allowed to finish; Stop decides
// when to give up on them.
func (d *Dispatcher) Start(ctx context.Context) {
	d.inboxMu.Lock()
	if d.stopped.Load() || d.started.Load() {
		d.inboxMu.Unlock()
		d.logger.Warn("reply: start ignored", "stopped", d.stopped.Load())
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.started.Store(true)
	d.inboxMu.Unlock()

	d.pool.Start(ctx, func(ctx context.Context) {
		for q := range d.inbox {
			d.handle(ctx, q.update, q.link)
		}
	})
	d.logger.Info("reply: started", "workers", d.config.WorkerCount, "inbox_size", d.config.InboxSize)
}

// Submit enqueues an update for delivery. If the inbox is full the update
// is dropped and ErrInboxFull returned. A span in ctx is linked from the
// delivery span; ctx cancellation does not affect delivery.
func (d *Dispatcher) Submit(ctx context.Context, u message.Update) error {
	d.inboxMu.RLock()
	defer d.inboxMu.RUnlock()

	if d.stopped.Load() {
		return ErrDispatcherStopped
	}

	select {
	case d.inbox <- queued{update: u, link: trace.SpanContextFromContext(ctx)}:
		return nil
	default:
		d.logger.Warn("reply: inbox full, update dropped",
			"update_id", u.UpdateID,
			"chat_id", u.ChatID,
		)
		return ErrInboxFull
	}
}

// Handle composes and sends the reply for u synchronously. It reports
// false when u needs no reply.
func (d *Dispatcher) Handle(ctx context.Context, u message.Update) (Result, bool) {
	return d.handle(ctx, u, trace.SpanContext{})
}

func (d *Dispatcher) handle(ctx context.Context, u message.Update, link trace.SpanContext) (Result, bool) {
	r, ok := Compose(u, d.BotUsername())
	if !ok {
		d.logger.Debug("reply: nothing to send", "update_id", u.UpdateID, "chat_id", u.ChatID)
		return Result{}, false
	}

	res := Result{
		DeliveryID: uuid.NewString(),
		Update:     u,
		Reply:      r,
	}

	opts := []trace.SpanStartOption{trace.WithAttributes(
		attribute.String("delivery.id", res.DeliveryID),
		attribute.Int("telegram.update_id", u.UpdateID),
		attribute.Int64("telegram.chat_id", u.ChatID),
		attribute.Bool("telegram.is_command", u.IsCommand),
	)}
	if link.IsValid() {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: link}))
	}
	ctx, span := d.config.Tracer.Start(ctx, "reply.deliver", opts...)
	defer span.End()

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	start := time.Now()
	res.Err = d.config.Sender.SendReply(sendCtx, r)
	res.Duration = time.Since(start)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "send failed")
		d.config.Metrics.RecordReply(metrics.ReplyFailed, res.Duration)
		d.logger.Error("reply: delivery failed",
			"delivery_id", res.DeliveryID,
			"update_id", u.UpdateID,
			"chat_id", u.ChatID,
			"duration", res.Duration,
			"error", res.Err,
		)
	} else {
		d.config.Metrics.RecordReply(metrics.ReplySent, res.Duration)
		d.logger.Debug("reply: delivered",
			"delivery_id", res.DeliveryID,
			"update_id", u.UpdateID,
			"chat_id", u.ChatID,
			"duration", res.Duration,
		)
	}

	if d.config.OnResult != nil {
		d.config.OnResult(res)
	}
	return res, true
}

// Stop closes the inbox and waits for queued replies to drain. If ctx
// expires first, in-flight sends are cancelled and Stop returns ctx.Err().
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Info("reply: stopping")

		d.inboxMu.Lock()
		d.stopped.Store(true)
		close(d.inbox)
		cancel := d.cancel
		d.inboxMu.Unlock()

		if cancel == nil {
			return
		}
		defer cancel()

		done := make(chan struct{})
		go func() {
			d.pool.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Info("reply: stopped")
		case <-ctx.Done():
			cancel()
			<-done
			err = ctx.Err()
			d.logger.Warn("reply: stop deadline reached, in-flight sends cancelled")
		}
	})
	return err
}
