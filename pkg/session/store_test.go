package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// storeFactories lets the behavioural tests run against every backend.
func storeFactories(t *testing.T) map[string]func(historySize int) Store {
	t.Helper()
	return map[string]func(int) Store{
		"memory": func(n int) Store {
			s := NewMemoryStore(n)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(n int) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisStoreFromClient(client, "test:", n)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_HistoryBound(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(DefaultHistorySize)
			ctx := context.Background()

			for i := 0; i < 12; i++ {
				if err := store.PushHistory(ctx, 1, fmt.Sprintf("req-%d", i), fmt.Sprintf("res-%d", i)); err != nil {
					t.Fatalf("PushHistory failed: %v", err)
				}
			}

			history, err := store.History(ctx, 1)
			if err != nil {
				t.Fatalf("History failed: %v", err)
			}
			if len(history) != DefaultHistorySize {
				t.Fatalf("expected %d entries, got %d", DefaultHistorySize, len(history))
			}
			for i, e := range history {
				want := fmt.Sprintf("req-%d", 11-i)
				if e.Request != want {
					t.Errorf("entry %d: got %q, want %q", i, e.Request, want)
				}
			}
		})
	}
}

func TestStore_EntryIndexSpace(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(3)
			ctx := context.Background()

			_ = store.PushHistory(ctx, 5, "1+1", "2.0")
			_ = store.PushHistory(ctx, 5, "x+1", "x + 1")

			e, err := store.Entry(ctx, 5, 0)
			if err != nil {
				t.Fatalf("Entry(0) failed: %v", err)
			}
			if e.Request != "x+1" || e.Result != "x + 1" {
				t.Errorf("unexpected newest entry %+v", e)
			}

			e, err = store.Entry(ctx, 5, 1)
			if err != nil || e.Request != "1+1" {
				t.Errorf("Entry(1) = %+v, %v", e, err)
			}

			for _, idx := range []int{2, -1, 100} {
				if _, err := store.Entry(ctx, 5, idx); !errors.Is(err, ErrEntryNotFound) {
					t.Errorf("Entry(%d): expected ErrEntryNotFound, got %v", idx, err)
				}
			}
			if _, err := store.Entry(ctx, 99, 0); !errors.Is(err, ErrEntryNotFound) {
				t.Errorf("unknown user: expected ErrEntryNotFound, got %v", err)
			}
		})
	}
}

func TestStore_PendingMode(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(DefaultHistorySize)
			ctx := context.Background()

			st, err := store.GetOrCreate(ctx, 7)
			if err != nil {
				t.Fatalf("GetOrCreate failed: %v", err)
			}
			if st.Mode != ModeNone {
				t.Errorf("new session should be idle, got %s", st.Mode)
			}
			if st.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}

			if err := store.SetPendingMode(ctx, 7, ModeAwaitingExpression); err != nil {
				t.Fatalf("SetPendingMode failed: %v", err)
			}
			st, _ = store.GetOrCreate(ctx, 7)
			if st.Mode != ModeAwaitingExpression {
				t.Errorf("expected awaiting mode, got %s", st.Mode)
			}

			if err := store.ClearPendingMode(ctx, 7); err != nil {
				t.Fatalf("ClearPendingMode failed: %v", err)
			}
			st, _ = store.GetOrCreate(ctx, 7)
			if st.Mode != ModeNone {
				t.Errorf("expected idle mode after clear, got %s", st.Mode)
			}
		})
	}
}

func TestStore_ReadsDoNotCreateSessions(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(DefaultHistorySize)
			ctx := context.Background()

			history, err := store.History(ctx, 3)
			if err != nil {
				t.Fatalf("History failed: %v", err)
			}
			if len(history) != 0 {
				t.Errorf("expected empty history, got %d entries", len(history))
			}
			_, _ = store.Entry(ctx, 3, 0)
			_ = store.ClearPendingMode(ctx, 3)

			n, err := store.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 0 {
				t.Errorf("expected no sessions, got %d", n)
			}

			_, _ = store.GetOrCreate(ctx, 3)
			_ = store.PushHistory(ctx, 4, "2+2", "4.0")
			if n, _ := store.Count(ctx); n != 2 {
				t.Errorf("expected 2 sessions, got %d", n)
			}
		})
	}
}

func TestStore_UsersAreIndependent(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(DefaultHistorySize)
			ctx := context.Background()

			_ = store.PushHistory(ctx, 1, "a", "1")
			_ = store.SetPendingMode(ctx, 2, ModeAwaitingExpression)

			st1, _ := store.GetOrCreate(ctx, 1)
			st2, _ := store.GetOrCreate(ctx, 2)
			if st1.Mode != ModeNone {
				t.Error("user 1 mode leaked from user 2")
			}
			if len(st2.History) != 0 {
				t.Error("user 2 history leaked from user 1")
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(DefaultHistorySize)
			ctx := context.Background()
			if err := store.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			if _, err := store.GetOrCreate(ctx, 1); !errors.Is(err, ErrStorageClosed) {
				t.Errorf("expected ErrStorageClosed, got %v", err)
			}
			if err := store.PushHistory(ctx, 1, "a", "b"); !errors.Is(err, ErrStorageClosed) {
				t.Errorf("expected ErrStorageClosed, got %v", err)
			}
		})
	}
}

func TestMemoryStore_LiveRecord(t *testing.T) {
	store := NewMemoryStore(DefaultHistorySize)
	ctx := context.Background()

	st, err := store.GetOrCreate(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	_ = store.SetPendingMode(ctx, 1, ModeAwaitingExpression)
	_ = store.PushHistory(ctx, 1, "2+2", "4.0")

	if st.Mode != ModeAwaitingExpression {
		t.Error("live record should observe the mode change")
	}
	if len(st.History) != 1 || st.History[0].Result != "4.0" {
		t.Errorf("live record should observe the history push, got %+v", st.History)
	}
}

func TestMemoryStore_ConcurrentUsers(t *testing.T) {
	store := NewMemoryStore(DefaultHistorySize)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 20; u++ {
		wg.Add(1)
		go func(id UserID) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = store.PushHistory(ctx, id, "r", "v")
				_, _ = store.History(ctx, id)
			}
		}(UserID(u))
	}
	wg.Wait()

	n, _ := store.Count(ctx)
	if n != 20 {
		t.Errorf("expected 20 sessions, got %d", n)
	}
	for u := 0; u < 20; u++ {
		h, _ := store.History(ctx, UserID(u))
		if len(h) != DefaultHistorySize {
			t.Errorf("user %d: expected %d entries, got %d", u, DefaultHistorySize, len(h))
		}
	}
}

func TestRedisStore_ClosePurgesInstanceKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	if err := mr.Set("unrelated", "keep"); err != nil {
		t.Fatal(err)
	}

	store := NewRedisStoreFromClient(client, "test:", DefaultHistorySize)
	_ = store.PushHistory(ctx, 1, "2+2", "4.0")
	_ = store.SetPendingMode(ctx, 1, ModeAwaitingExpression)

	if len(mr.Keys()) < 4 {
		t.Fatalf("expected session keys to be written, got %v", mr.Keys())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "unrelated" {
		t.Errorf("expected only the unrelated key to remain, got %v", keys)
	}
}

func TestRedisStore_InstancesAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", 0)
	b := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", 0)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	_ = a.PushHistory(ctx, 1, "x", "y")
	h, err := b.History(ctx, 1)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(h) != 0 {
		t.Errorf("instances must not share state, got %+v", h)
	}
}

func TestNew(t *testing.T) {
	store, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", store)
	}

	if _, err := New(Config{Store: "postgres"}); err == nil {
		t.Error("expected error for unknown store")
	}
	if _, err := New(Config{Store: "redis"}); err == nil {
		t.Error("expected error for redis without address")
	}
}
