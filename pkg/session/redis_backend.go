package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Keys are namespaced by a
// per-process instance ID and removed on Close, so state still lives
// only as long as the process.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	historySize int
	now         func() time.Time
	mu          sync.RWMutex
	closed      bool
}

// NewRedisStore connects to Redis and creates a store.
func NewRedisStore(cfg RedisConfig, historySize int) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Close client to release connection pool resources
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, historySize), nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, historySize int) *RedisStore {
	if prefix == "" {
		prefix = "smartmath:"
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix + uuid.NewString() + ":",
		historySize: historySize,
		now:         time.Now,
	}
}

// Key helpers
func (s *RedisStore) usersKey() string {
	return s.prefix + "users"
}

func (s *RedisStore) modeKey(id UserID) string {
	return s.prefix + "mode:" + strconv.FormatInt(int64(id), 10)
}

func (s *RedisStore) historyKey(id UserID) string {
	return s.prefix + "history:" + strconv.FormatInt(int64(id), 10)
}

func (s *RedisStore) createdKey(id UserID) string {
	return s.prefix + "created:" + strconv.FormatInt(int64(id), 10)
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// ensure queues the commands registering id as a known user.
func (s *RedisStore) ensure(ctx context.Context, pipe redis.Pipeliner, id UserID) {
	pipe.SAdd(ctx, s.usersKey(), int64(id))
	pipe.SetNX(ctx, s.createdKey(id), s.now().UTC().Format(time.RFC3339Nano), 0)
}

// GetOrCreate returns a snapshot of the session of id. Mutations go
// through the store.
func (s *RedisStore) GetOrCreate(ctx context.Context, id UserID) (*State, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	s.ensure(ctx, pipe, id)
	modeCmd := pipe.Get(ctx, s.modeKey(id))
	createdCmd := pipe.Get(ctx, s.createdKey(id))
	historyCmd := pipe.LRange(ctx, s.historyKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	st := &State{UserID: id, Mode: ModeNone}
	if raw, err := modeCmd.Int(); err == nil {
		st.Mode = Mode(raw)
	}
	if raw, err := createdCmd.Result(); err == nil {
		st.CreatedAt, _ = time.Parse(time.RFC3339Nano, raw)
	}
	history, err := decodeEntries(historyCmd.Val())
	if err != nil {
		return nil, err
	}
	st.History = history
	return st, nil
}

// PushHistory prepends an entry and trims the list to the bound.
func (s *RedisStore) PushHistory(ctx context.Context, id UserID, request, result string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(HistoryEntry{Request: request, Result: result})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	s.ensure(ctx, pipe, id)
	pipe.LPush(ctx, s.historyKey(id), data)
	pipe.LTrim(ctx, s.historyKey(id), 0, int64(s.historySize-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	return nil
}

// SetPendingMode sets the pending-input mode of id.
func (s *RedisStore) SetPendingMode(ctx context.Context, id UserID, mode Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	s.ensure(ctx, pipe, id)
	pipe.Set(ctx, s.modeKey(id), int(mode), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

// ClearPendingMode resets the mode of id.
func (s *RedisStore) ClearPendingMode(ctx context.Context, id UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.modeKey(id)).Err(); err != nil {
		return fmt.Errorf("clear mode: %w", err)
	}
	return nil
}

// History returns the entries of id most-recent-first.
func (s *RedisStore) History(ctx context.Context, id UserID) ([]HistoryEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	data, err := s.client.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return decodeEntries(data)
}

// Entry returns the entry of id at index.
func (s *RedisStore) Entry(ctx context.Context, id UserID, index int) (HistoryEntry, error) {
	if err := s.checkOpen(); err != nil {
		return HistoryEntry{}, err
	}
	if index < 0 {
		return HistoryEntry{}, fmt.Errorf("%w: user %d index %d", ErrEntryNotFound, id, index)
	}

	data, err := s.client.LIndex(ctx, s.historyKey(id), int64(index)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return HistoryEntry{}, fmt.Errorf("%w: user %d index %d", ErrEntryNotFound, id, index)
		}
		return HistoryEntry{}, fmt.Errorf("load entry: %w", err)
	}

	var entry HistoryEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return HistoryEntry{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	return entry, nil
}

// Count returns the number of sessions.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, err := s.client.SCard(ctx, s.usersKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

// Close deletes every key of this instance and closes the client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var purgeErr error
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		purgeErr = fmt.Errorf("scan keys: %w", err)
	} else if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			purgeErr = fmt.Errorf("delete keys: %w", err)
		}
	}

	return errors.Join(purgeErr, s.client.Close())
}

func decodeEntries(data []string) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, len(data))
	for _, d := range data {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var _ Store = (*RedisStore)(nil)
