// Package console is a local line-editing front-end for the dispatcher.
// Lines starting with "/" are commands, "!reuse N", "!solve N" and
// "!hist [N]" press the inline buttons, anything else is a message.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/aixgo-dev/smartmath/internal/chat"
)

// DefaultUserID is the participant the console speaks as.
const DefaultUserID int64 = 1

const prompt = "smartmath> "

// ErrUnknownAction is returned for a "!" line that is not a button.
var ErrUnknownAction = errors.New("unknown action")

// Dispatcher handles one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event, r chat.Responder) error
}

// Console feeds lines to a dispatcher and prints the replies.
type Console struct {
	dispatcher Dispatcher
	user       int64
	out        io.Writer
	logger     *zap.Logger
	seq        atomic.Int64
}

// New creates a console writing to out.
func New(d Dispatcher, user int64, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	if user == 0 {
		user = DefaultUserID
	}
	return &Console{dispatcher: d, user: user, out: out, logger: logger}
}

// Run reads lines until EOF, Ctrl-C or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Fprintln(c.out, chat.StartText)
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(prompt)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if err := c.Exec(ctx, input); err != nil {
			if errors.Is(err, ErrUnknownAction) {
				fmt.Fprintln(c.out, err)
				continue
			}
			return err
		}
	}
}

// Exec handles a single input line.
func (c *Console) Exec(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	ev := chat.Event{
		ID:     strconv.FormatInt(c.seq.Add(1), 10),
		UserID: c.user,
		ChatID: c.user,
		Text:   input,
	}

	switch {
	case strings.HasPrefix(input, "!"):
		p, err := c.parseAction(input[1:])
		if err != nil {
			return err
		}
		ev.Kind = chat.EventCallback
		ev.CallbackID = ev.ID
		ev.Data = p.Encode()
		ev.Text = ""
	default:
		ev.Kind = chat.EventText
		if name, args, ok := chat.ParseCommand(input); ok {
			ev.Kind = chat.EventCommand
			ev.Command = name
			ev.Args = args
		}
	}

	err := c.dispatcher.Dispatch(ctx, ev, &printer{out: c.out})
	if err != nil {
		c.logger.Error("dispatch", zap.String("event", ev.ID), zap.Error(err))
	}
	return err
}

func (c *Console) parseAction(s string) (chat.Payload, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return chat.Payload{}, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}

	var action chat.Action
	switch fields[0] {
	case "reuse":
		action = chat.ActionReuse
	case "solve":
		action = chat.ActionSolve
	case "hist", "history":
		action = chat.ActionHistory
	default:
		return chat.Payload{}, fmt.Errorf("%w: %q", ErrUnknownAction, fields[0])
	}

	index := 0
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return chat.Payload{}, fmt.Errorf("%w: bad index %q", ErrUnknownAction, fields[1])
		}
		index = n
	} else if action != chat.ActionHistory {
		return chat.Payload{}, fmt.Errorf("%w: %s needs an index", ErrUnknownAction, fields[0])
	}

	return chat.Payload{Action: action, User: c.user, Index: index}, nil
}

// printer writes replies as plain text.
type printer struct {
	out io.Writer
}

func (p *printer) Reply(_ context.Context, reply chat.Reply) error {
	var b strings.Builder
	b.WriteString(reply.Text)
	b.WriteByte('\n')
	for _, row := range reply.Keyboard {
		labels := make([]string, len(row))
		for i, btn := range row {
			labels[i] = fmt.Sprintf("[%s: !%s]", btn.Label, buttonCommand(btn.Payload))
		}
		b.WriteString(strings.Join(labels, " "))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(p.out, b.String())
	return err
}

func (p *printer) Ack(context.Context) error { return nil }

// buttonCommand turns "reuse:1:0" into "reuse 0".
func buttonCommand(payload string) string {
	pl, err := chat.ParsePayload(payload)
	if err != nil {
		return payload
	}
	return fmt.Sprintf("%s %d", pl.Action, pl.Index)
}
