// Package session keeps the per-user state of the SmartMath bot: the
// pending-input mode and a bounded, most-recent-first calculation history.
// State lives for the lifetime of the process.
package session

import (
	"time"
)

// DefaultHistorySize is the number of history entries kept per user.
const DefaultHistorySize = 8

// UserID identifies a chat participant.
type UserID int64

// Mode is the pending-input mode of a user.
type Mode int

const (
	// ModeNone means free text is only evaluated speculatively.
	ModeNone Mode = iota
	// ModeAwaitingExpression means the next free-text message is a
	// calculation request (set by /calc).
	ModeAwaitingExpression
)

func (m Mode) String() string {
	switch m {
	case ModeAwaitingExpression:
		return "awaiting_expression"
	default:
		return "none"
	}
}

// HistoryEntry is one past calculation.
type HistoryEntry struct {
	// Request is the text the user sent.
	Request string `json:"request"`
	// Result is the formatted answer.
	Result string `json:"result"`
}

// State is the session of one user.
type State struct {
	// UserID is the owner of this session.
	UserID UserID `json:"userId"`
	// Mode is the pending-input mode.
	Mode Mode `json:"mode"`
	// History holds the latest calculations, index 0 being the newest.
	History []HistoryEntry `json:"history"`
	// CreatedAt is when the user first interacted.
	CreatedAt time.Time `json:"createdAt"`
}
