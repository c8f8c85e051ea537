package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aixgo-dev/smartmath/internal/observability"
	"github.com/aixgo-dev/smartmath/pkg/algebra"
	metrics "github.com/aixgo-dev/smartmath/pkg/observability"
	"github.com/aixgo-dev/smartmath/pkg/session"
)

// RateLimiter decides whether a user's message arrives too soon.
type RateLimiter interface {
	TooSoon(userID int64, now time.Time) bool
}

// Dispatcher routes events to the command, text and callback handlers.
// It is safe for concurrent use; events of one user must be delivered in
// order (see internal/queue) for the pending mode to behave.
type Dispatcher struct {
	store   session.Store
	limiter RateLimiter
	engine  Engine
	logger  *zap.Logger
	now     func() time.Time
	maxLen  int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEngine replaces the math engine.
func WithEngine(engine Engine) Option {
	return func(d *Dispatcher) {
		if engine != nil {
			d.engine = engine
		}
	}
}

// WithClock replaces time.Now for rate limiting.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithQuickEvalMaxLength sets the exclusive length bound for idle-mode
// quick evaluation.
func WithQuickEvalMaxLength(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxLen = n
		}
	}
}

// New creates a Dispatcher.
func New(store session.Store, limiter RateLimiter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		limiter: limiter,
		engine:  algebra.NewEngine(),
		logger:  zap.NewNop(),
		now:     time.Now,
		maxLen:  DefaultQuickEvalMaxLength,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one event. Returned errors are system failures (session
// store, transport); input problems are answered in the chat.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, r Responder) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "chat."+ev.Kind.String(), map[string]any{
		"event.id": ev.ID,
		"user.id":  ev.UserID,
	})
	defer span.End()

	var err error
	switch ev.Kind {
	case EventCommand:
		err = d.HandleCommand(ctx, ev, r)
	case EventText:
		err = d.HandleText(ctx, ev, r)
	case EventCallback:
		err = d.HandleCallback(ctx, ev, r)
	default:
		err = fmt.Errorf("unknown event kind %d", ev.Kind)
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.SetError(err)
		d.logger.Error("handle event",
			zap.String("event", ev.ID),
			zap.String("kind", ev.Kind.String()),
			zap.Int64("user_id", ev.UserID),
			zap.Error(err))
	}
	metrics.RecordEvent(ev.Kind.String(), status, time.Since(start))
	return err
}

// HandleCommand answers /start, /help, /calc and /history. Other commands
// get the generic reply.
func (d *Dispatcher) HandleCommand(ctx context.Context, ev Event, r Responder) error {
	name := ev.Command
	if name == "" {
		name, _, _ = ParseCommand(ev.Text)
	}
	uid := session.UserID(ev.UserID)

	switch name {
	case "start":
		return d.reply(ctx, r, Reply{Text: StartText})
	case "help":
		return d.reply(ctx, r, Reply{Text: HelpText, Quote: true})
	case "calc":
		if err := d.store.SetPendingMode(ctx, uid, session.ModeAwaitingExpression); err != nil {
			return fmt.Errorf("set pending mode: %w", err)
		}
		return d.reply(ctx, r, Reply{Text: CalcPromptText, Quote: true})
	case "history":
		entries, err := d.store.History(ctx, uid)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		return d.reply(ctx, r, Reply{Text: FormatHistory(entries, 0), Quote: true})
	}

	d.logger.Debug("unknown command", zap.String("command", name), zap.Int64("user_id", ev.UserID))
	return d.reply(ctx, r, Reply{Text: NotUnderstoodText, Quote: true})
}

// HandleText handles free text: a pending /calc consumes it, otherwise
// likely expressions are quick-evaluated.
func (d *Dispatcher) HandleText(ctx context.Context, ev Event, r Responder) error {
	text := strings.TrimSpace(ev.Text)
	uid := session.UserID(ev.UserID)

	// The pending mode survives a rejected message.
	if d.limiter != nil && d.limiter.TooSoon(ev.UserID, d.now()) {
		metrics.RecordRateLimited()
		d.logger.Debug("rate limited", zap.Int64("user_id", ev.UserID))
		return d.reply(ctx, r, Reply{Text: RateLimitedText, Quote: true})
	}

	state, err := d.store.GetOrCreate(ctx, uid)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if state.Mode == session.ModeAwaitingExpression {
		if err := d.store.ClearPendingMode(ctx, uid); err != nil {
			return fmt.Errorf("clear pending mode: %w", err)
		}
		return d.calculate(ctx, ev.UserID, text, r)
	}

	if Classify(text, d.maxLen) == LikelyExpression {
		res, err := d.quickEvaluate(text)
		switch {
		case err != nil && !isUserError(err):
			metrics.RecordCalculation("quick", "error")
			return err
		case err != nil:
			metrics.RecordCalculation("quick", "rejected")
		case res.ok:
			metrics.RecordCalculation("quick", "ok")
			if err := d.store.PushHistory(ctx, uid, text, res.value); err != nil {
				return fmt.Errorf("push history: %w", err)
			}
			return d.reply(ctx, r, Reply{
				Text:     fmt.Sprintf("Quick: %s → %s", text, res.value),
				Keyboard: ActionKeyboard(ev.UserID, 0),
				Quote:    true,
			})
		}
	}

	return d.reply(ctx, r, Reply{Text: NotUnderstoodText, Quote: true})
}

// calculate evaluates, simplifies or solves text for a pending /calc.
func (d *Dispatcher) calculate(ctx context.Context, user int64, text string, r Responder) error {
	var (
		result string
		answer string
		path   = "evaluate"
		err    error
	)
	if strings.Contains(text, "=") {
		path = "solve"
		var sol solution
		sol, err = d.solveText(text)
		result = sol.result
		answer = fmt.Sprintf("Solved for %s:\n%s", sol.variable, sol.result)
	} else {
		result, err = d.evaluateText(text)
		answer = fmt.Sprintf("%s → %s", text, result)
	}

	if err != nil {
		metrics.RecordCalculation(path, "error")
		d.logger.Debug("calculation failed", zap.Int64("user_id", user), zap.String("action", path), zap.Error(err))
		return d.reply(ctx, r, Reply{Text: "Error: " + err.Error(), Quote: true})
	}
	metrics.RecordCalculation(path, "ok")

	if err := d.store.PushHistory(ctx, session.UserID(user), text, result); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	return d.reply(ctx, r, Reply{Text: answer, Keyboard: ActionKeyboard(user, 0), Quote: true})
}

// HandleCallback answers a button press. The press is acknowledged exactly
// once, whatever the outcome.
func (d *Dispatcher) HandleCallback(ctx context.Context, ev Event, r Responder) (err error) {
	defer func() {
		if ackErr := r.Ack(ctx); ackErr != nil {
			d.logger.Warn("acknowledge callback", zap.String("event", ev.ID), zap.Error(ackErr))
			err = errors.Join(err, fmt.Errorf("ack callback: %w", ackErr))
		}
	}()

	text, cbErr := d.callbackText(ctx, ev.Data)
	switch {
	case errors.Is(cbErr, session.ErrEntryNotFound):
		text = EntryNotFoundText
	case cbErr != nil:
		d.logger.Debug("callback failed", zap.String("data", ev.Data), zap.Error(cbErr))
		text = "Callback error: " + cbErr.Error()
	}
	return d.reply(ctx, r, Reply{Text: text})
}

func (d *Dispatcher) callbackText(ctx context.Context, data string) (string, error) {
	p, err := ParsePayload(data)
	if err != nil {
		return "", err
	}
	uid := session.UserID(p.User)

	switch p.Action {
	case ActionReuse:
		entry, err := d.store.Entry(ctx, uid, p.Index)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Reusing: %s\nResult: %s", entry.Request, entry.Result), nil

	case ActionSolve:
		entry, err := d.store.Entry(ctx, uid, p.Index)
		if err != nil {
			return "", err
		}
		text, err := d.resolveEntry(entry.Request)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordCalculation("callback_solve", status)
		return text, err

	case ActionHistory:
		entries, err := d.store.History(ctx, uid)
		if err != nil {
			return "", err
		}
		if p.Index > 0 && p.Index >= len(entries) {
			return "", session.ErrEntryNotFound
		}
		return FormatHistory(entries[p.Index:], p.Index), nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, p.Action)
}

func (d *Dispatcher) reply(ctx context.Context, r Responder, reply Reply) error {
	if err := r.Reply(ctx, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
