// Package telegram connects the chat dispatcher to the Telegram Bot API
// through long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aixgo-dev/smartmath/internal/chat"
	"github.com/aixgo-dev/smartmath/internal/queue"
	"github.com/aixgo-dev/smartmath/pkg/observability"
	"github.com/aixgo-dev/smartmath/pkg/security"
)

const transportName = "telegram"

// API is the subset of *bot.Bot the transport uses.
type API interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
	Close(ctx context.Context) (bool, error)
}

// Dispatcher handles one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event, r chat.Responder) error
}

// Config configures a Transport.
type Config struct {
	// SendRate is the number of messages per second the bot may send,
	// globally and per chat.
	SendRate float64
	// SendBurst is the burst allowed on top of SendRate.
	SendBurst int
	// BreakerFailures consecutive send failures open the circuit.
	BreakerFailures int
	// BreakerReset is how long the circuit stays open.
	BreakerReset time.Duration
	// QueueBuffer is the number of events that may wait per user.
	QueueBuffer int
	// WorkerIdle is how long an idle per-user worker is kept.
	WorkerIdle time.Duration
}

// DefaultConfig returns limits that stay below the Bot API quotas.
func DefaultConfig() Config {
	return Config{
		SendRate:        25,
		SendBurst:       5,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
		QueueBuffer:     16,
		WorkerIdle:      time.Minute,
	}
}

// Transport receives updates, runs them through the dispatcher one user at
// a time and sends the replies.
type Transport struct {
	api        API
	dispatcher Dispatcher
	queue      *queue.Serializer[int64]
	limiter    *security.RateLimiter
	breaker    *security.CircuitBreaker
	logger     *zap.Logger
}

// New connects to the Bot API with token.
func New(token string, d Dispatcher, cfg Config, logger *zap.Logger) (*Transport, error) {
	if token == "" {
		return nil, errors.New("telegram: empty bot token")
	}

	t := newTransport(d, cfg, logger)
	b, err := bot.New(token,
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			t.HandleUpdate(ctx, update)
		}),
		bot.WithErrorsHandler(func(err error) {
			t.logger.Warn("polling error", zap.String("error", security.RedactSecrets(err.Error())))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %s", security.RedactSecrets(err.Error()))
	}
	t.api = b
	return t, nil
}

// NewWithAPI creates a Transport over an existing client.
func NewWithAPI(api API, d Dispatcher, cfg Config, logger *zap.Logger) *Transport {
	t := newTransport(d, cfg, logger)
	t.api = api
	return t
}

func newTransport(d Dispatcher, cfg Config, logger *zap.Logger) *Transport {
	def := DefaultConfig()
	if cfg.SendRate <= 0 {
		cfg.SendRate = def.SendRate
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = def.SendBurst
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = def.BreakerReset
	}
	if cfg.QueueBuffer <= 0 {
		cfg.QueueBuffer = def.QueueBuffer
	}
	if cfg.WorkerIdle <= 0 {
		cfg.WorkerIdle = def.WorkerIdle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("transport", transportName))

	return &Transport{
		dispatcher: d,
		queue: queue.New[int64](
			queue.WithBuffer(cfg.QueueBuffer),
			queue.WithIdleTimeout(cfg.WorkerIdle),
			queue.WithLogger(logger),
			queue.WithPanicHook(func(any, any) { observability.RecordHandlerPanic() }),
		),
		limiter: security.NewRateLimiter(cfg.SendRate, cfg.SendBurst),
		breaker: security.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		logger:  logger,
	}
}

// ActiveWorkers returns the number of users with queued or running events.
func (t *Transport) ActiveWorkers() int {
	return t.queue.Active()
}

// RegisterCommands publishes the command menu. Failures are logged only.
func (t *Transport) RegisterCommands(ctx context.Context) {
	infos := chat.Commands()
	cmds := make([]models.BotCommand, len(infos))
	for i, c := range infos {
		cmds[i] = models.BotCommand{Command: c.Name, Description: c.Description}
	}

	if _, err := t.api.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds}); err != nil {
		t.logger.Warn("register commands", zap.String("error", security.RedactSecrets(err.Error())))
		return
	}
	t.logger.Info("commands registered", zap.Int("count", len(cmds)))
}

// Run polls for updates until ctx is cancelled, then drains the per-user
// queues.
func (t *Transport) Run(ctx context.Context) error {
	t.RegisterCommands(ctx)
	t.logger.Info("polling started")
	t.api.Start(ctx)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := t.queue.Close(drainCtx); err != nil {
		t.logger.Warn("drain queue", zap.Error(err))
	}
	t.logger.Info("polling stopped")
	return nil
}

// Close ends the bot session. Errors are logged and swallowed.
func (t *Transport) Close(ctx context.Context) {
	if _, err := t.api.Close(ctx); err != nil {
		t.logger.Warn("close session", zap.String("error", security.RedactSecrets(err.Error())))
	}
}

// HandleUpdate converts update into an event and queues it behind the
// sender's earlier events.
func (t *Transport) HandleUpdate(ctx context.Context, update *models.Update) {
	ev, ok := toEvent(update)
	if !ok {
		return
	}
	ev.ID = uuid.NewString()

	r := &responder{t: t, chatID: ev.ChatID, messageID: ev.MessageID, callbackID: ev.CallbackID}
	// The update context ends with the polling loop; queued work must finish.
	taskCtx := context.WithoutCancel(ctx)

	err := t.queue.Submit(ev.UserID, func() {
		if err := t.dispatcher.Dispatch(taskCtx, ev, r); err != nil {
			t.logger.Error("dispatch",
				zap.String("event", ev.ID),
				zap.Int64("user_id", ev.UserID),
				zap.String("error", security.RedactSecrets(err.Error())))
		}
	})
	if err != nil {
		reason := "full"
		if errors.Is(err, queue.ErrClosed) {
			reason = "closed"
		}
		observability.RecordDroppedEvent(reason)
		t.logger.Warn("drop event", zap.String("event", ev.ID), zap.Int64("user_id", ev.UserID), zap.Error(err))
		if ev.Kind == chat.EventCallback {
			_ = r.Ack(taskCtx)
		}
	}
}

func toEvent(update *models.Update) (chat.Event, bool) {
	switch {
	case update == nil:
		return chat.Event{}, false

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		ev := chat.Event{
			Kind:       chat.EventCallback,
			UserID:     q.From.ID,
			ChatID:     q.From.ID,
			CallbackID: q.ID,
			Data:       q.Data,
		}
		switch {
		case q.Message.Message != nil:
			ev.ChatID = q.Message.Message.Chat.ID
		case q.Message.InaccessibleMessage != nil:
			ev.ChatID = q.Message.InaccessibleMessage.Chat.ID
		}
		return ev, true

	case update.Message != nil && update.Message.From != nil && update.Message.Text != "":
		m := update.Message
		ev := chat.Event{
			Kind:      chat.EventText,
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.ID,
			Text:      m.Text,
		}
		if name, args, ok := chat.ParseCommand(m.Text); ok {
			ev.Kind = chat.EventCommand
			ev.Command = name
			ev.Args = args
		}
		return ev, true
	}
	return chat.Event{}, false
}

// responder answers one update.
type responder struct {
	t          *Transport
	chatID     int64
	messageID  int
	callbackID string
	acked      bool
}

func (r *responder) Reply(ctx context.Context, reply chat.Reply) error {
	params := &bot.SendMessageParams{
		ChatID: r.chatID,
		Text:   reply.Text,
	}
	if reply.Quote && r.messageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: r.messageID}
	}
	if len(reply.Keyboard) > 0 {
		params.ReplyMarkup = toMarkup(reply.Keyboard)
	}

	if err := r.t.limiter.Wait(ctx, r.chatID); err != nil {
		observability.RecordReply(transportName, "throttled")
		return err
	}
	err := r.t.breaker.Execute(func() error {
		_, err := r.t.api.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		observability.RecordReply(transportName, "failed")
		return errors.New(security.RedactSecrets(err.Error()))
	}
	observability.RecordReply(transportName, "sent")
	return nil
}

func (r *responder) Ack(ctx context.Context) error {
	if r.callbackID == "" || r.acked {
		return nil
	}
	r.acked = true
	if _, err := r.t.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: r.callbackID}); err != nil {
		return errors.New(security.RedactSecrets(err.Error()))
	}
	return nil
}

func toMarkup(rows [][]chat.Button) *models.InlineKeyboardMarkup {
	kb := make([][]models.InlineKeyboardButton, len(rows))
	for i, row := range rows {
		kb[i] = make([]models.InlineKeyboardButton, len(row))
		for j, b := range row {
			kb[i][j] = models.InlineKeyboardButton{Text: b.Label, CallbackData: b.Payload}
		}
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}
