// Package chat is the transport-independent core of the SmartMath bot. It
// routes command, text and callback events to handlers, keeps per-user
// state through a session.Store and formats results of the math engine.
package chat

import (
	"context"
)

// EventKind tells which handler an event goes to.
type EventKind int

const (
	// EventCommand is a message starting with a command token (/calc).
	EventCommand EventKind = iota
	// EventText is any other text message.
	EventText
	// EventCallback is a button press carrying a payload.
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventCallback:
		return "callback"
	}
	return "unknown"
}

// Event is an inbound update as delivered by a transport.
type Event struct {
	// ID correlates log lines and spans of one event.
	ID   string
	Kind EventKind

	UserID    int64
	ChatID    int64
	MessageID int

	// Text is the raw message text (EventText, EventCommand).
	Text string
	// Command is the lower-case command name without the slash.
	Command string
	// Args is the text after the command token.
	Args string

	// CallbackID identifies the button press to acknowledge.
	CallbackID string
	// Data is the opaque button payload (EventCallback).
	Data string
}

// Button is an inline action button.
type Button struct {
	Label   string
	Payload string
}

// Reply is an outbound message.
type Reply struct {
	Text string
	// Keyboard holds rows of buttons; nil means none.
	Keyboard [][]Button
	// Quote asks the transport to reply to the triggering message.
	Quote bool
}

// Responder sends replies for one event. Transports implement it.
type Responder interface {
	// Reply sends a message to the chat the event came from.
	Reply(ctx context.Context, reply Reply) error
	// Ack acknowledges a callback event. Other events ignore it.
	Ack(ctx context.Context) error
}
