package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a map. GetOrCreate hands out the live
// record; callers holding it observe later mutations.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[UserID]*State
	historySize int
	now         func() time.Time
	closed      bool
}

// NewMemoryStore creates an in-process store. historySize <= 0 selects
// DefaultHistorySize.
func NewMemoryStore(historySize int) *MemoryStore {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &MemoryStore{
		sessions:    make(map[UserID]*State),
		historySize: historySize,
		now:         time.Now,
	}
}

// getOrCreateLocked must be called with mu held for writing.
func (s *MemoryStore) getOrCreateLocked(id UserID) *State {
	st, ok := s.sessions[id]
	if !ok {
		st = &State{UserID: id, Mode: ModeNone, CreatedAt: s.now().UTC()}
		s.sessions[id] = st
	}
	return st
}

// GetOrCreate returns the live session of id.
func (s *MemoryStore) GetOrCreate(_ context.Context, id UserID) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStorageClosed
	}
	return s.getOrCreateLocked(id), nil
}

// PushHistory prepends an entry and evicts the oldest beyond the bound.
func (s *MemoryStore) PushHistory(_ context.Context, id UserID, request, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}

	st := s.getOrCreateLocked(id)
	history := make([]HistoryEntry, 0, min(len(st.History)+1, s.historySize))
	history = append(history, HistoryEntry{Request: request, Result: result})
	for _, e := range st.History {
		if len(history) == s.historySize {
			break
		}
		history = append(history, e)
	}
	st.History = history
	return nil
}

// SetPendingMode sets the pending-input mode of id.
func (s *MemoryStore) SetPendingMode(_ context.Context, id UserID, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	s.getOrCreateLocked(id).Mode = mode
	return nil
}

// ClearPendingMode resets the mode of id.
func (s *MemoryStore) ClearPendingMode(_ context.Context, id UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	if st, ok := s.sessions[id]; ok {
		st.Mode = ModeNone
	}
	return nil
}

// History returns a copy of the history of id.
func (s *MemoryStore) History(_ context.Context, id UserID) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStorageClosed
	}
	st, ok := s.sessions[id]
	if !ok {
		return []HistoryEntry{}, nil
	}
	return append([]HistoryEntry(nil), st.History...), nil
}

// Entry returns the entry of id at index.
func (s *MemoryStore) Entry(_ context.Context, id UserID, index int) (HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HistoryEntry{}, ErrStorageClosed
	}
	st, ok := s.sessions[id]
	if !ok || index < 0 || index >= len(st.History) {
		return HistoryEntry{}, fmt.Errorf("%w: user %d index %d", ErrEntryNotFound, id, index)
	}
	return st.History[index], nil
}

// Count returns the number of sessions.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStorageClosed
	}
	return len(s.sessions), nil
}

// Close drops all sessions.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
