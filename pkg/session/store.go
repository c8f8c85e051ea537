package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrEntryNotFound is returned when a history index is out of range.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrStorageClosed is returned when operating on a closed store.
	ErrStorageClosed = errors.New("session store is closed")
)

// Store owns the session of every user. Sessions are created lazily by
// GetOrCreate, PushHistory and SetPendingMode. Read-only operations never
// create a session. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreate returns the session of id, creating it on first use.
	GetOrCreate(ctx context.Context, id UserID) (*State, error)

	// PushHistory prepends an entry and truncates the history to the
	// configured bound.
	PushHistory(ctx context.Context, id UserID, request, result string) error

	// SetPendingMode sets the pending-input mode.
	SetPendingMode(ctx context.Context, id UserID, mode Mode) error

	// ClearPendingMode resets the mode to ModeNone.
	ClearPendingMode(ctx context.Context, id UserID) error

	// History returns the entries most-recent-first. Unknown users have an
	// empty history.
	History(ctx context.Context, id UserID) ([]HistoryEntry, error)

	// Entry returns the entry at index, 0 being the newest.
	// Returns ErrEntryNotFound when index is out of range.
	Entry(ctx context.Context, id UserID, index int) (HistoryEntry, error)

	// Count returns the number of sessions.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
