package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned for callback data that is not
// action:user:index.
var ErrMalformedPayload = errors.New("malformed callback payload")

// Action is the verb of a callback payload.
type Action string

const (
	ActionReuse   Action = "reuse"
	ActionSolve   Action = "solve"
	ActionHistory Action = "hist"
)

// Payload is the typed form of a button payload. User and Index address
// a history entry; any user may reference any other user's entries.
type Payload struct {
	Action Action
	User   int64
	Index  int
}

// Encode returns the wire form action:user:index.
func (p Payload) Encode() string {
	return fmt.Sprintf("%s:%d:%d", p.Action, p.User, p.Index)
}

// ParsePayload decodes a button payload.
func ParsePayload(data string) (Payload, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Payload{}, fmt.Errorf("%w: %q", ErrMalformedPayload, data)
	}

	action := Action(parts[0])
	switch action {
	case ActionReuse, ActionSolve, ActionHistory:
	default:
		return Payload{}, fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, parts[0])
	}

	user, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: user %q", ErrMalformedPayload, parts[1])
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return Payload{}, fmt.Errorf("%w: index %q", ErrMalformedPayload, parts[2])
	}

	return Payload{Action: action, User: user, Index: index}, nil
}
