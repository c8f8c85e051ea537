// Package queue runs tasks one at a time per key. Each active key owns a
// worker goroutine fed by a buffered channel, so tasks for one user keep
// their submission order while different users proceed in parallel.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue closed")

	// ErrQueueFull is returned when a key already has Buffer tasks waiting.
	ErrQueueFull = errors.New("queue full")
)

// Task is a unit of work.
type Task func()

// Config contains configuration options for a Serializer
type Config struct {
	// Buffer is the number of tasks that may wait per key.
	// Default: 16
	Buffer int

	// IdleTimeout is how long a worker waits for work before exiting.
	// Default: 1 minute
	IdleTimeout time.Duration

	// Logger receives recovered panics. Default: no-op.
	Logger *zap.Logger

	// OnPanic is called after a task panicked.
	OnPanic func(key any, value any)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Buffer:      16,
		IdleTimeout: time.Minute,
	}
}

// Option is a functional option for configuring a Serializer
type Option func(*Config)

// WithBuffer sets the per-key buffer size
func WithBuffer(size int) Option {
	return func(cfg *Config) {
		cfg.Buffer = size
	}
}

// WithIdleTimeout sets how long idle workers are kept
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.IdleTimeout = d
	}
}

// WithLogger sets the logger for recovered panics
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// WithPanicHook registers a callback for recovered panics
func WithPanicHook(fn func(key any, value any)) Option {
	return func(cfg *Config) {
		cfg.OnPanic = fn
	}
}

type worker struct {
	tasks chan Task
}

// Serializer runs tasks sequentially per key.
type Serializer[K comparable] struct {
	cfg *Config

	mu      sync.Mutex
	workers map[K]*worker
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Serializer.
func New[K comparable](opts ...Option) *Serializer[K] {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Serializer[K]{
		cfg:     cfg,
		workers: make(map[K]*worker),
	}
}

// Submit queues task behind the earlier tasks of key. It never blocks.
func (s *Serializer[K]) Submit(key K, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	w, ok := s.workers[key]
	if !ok {
		w = &worker{tasks: make(chan Task, s.cfg.Buffer)}
		s.workers[key] = w
		s.wg.Add(1)
		go s.run(key, w)
	}

	select {
	case w.tasks <- task:
		return nil
	default:
		return fmt.Errorf("%w: key %v", ErrQueueFull, key)
	}
}

// Active returns the number of keys with a running worker.
func (s *Serializer[K]) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close stops accepting tasks, lets the workers drain what is queued and
// waits for them until ctx is done.
func (s *Serializer[K]) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for key, w := range s.workers {
			close(w.tasks)
			delete(s.workers, key)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (s *Serializer[K]) run(key K, w *worker) {
	defer s.wg.Done()

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			s.execute(key, task)
			idle.Reset(s.cfg.IdleTimeout)

		case <-idle.C:
			// Submit sends under mu, so an empty channel here stays empty
			// until the worker is unregistered.
			s.mu.Lock()
			if len(w.tasks) == 0 && s.workers[key] == w {
				delete(s.workers, key)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(s.cfg.IdleTimeout)
		}
	}
}

func (s *Serializer[K]) execute(key K, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("task panicked",
				zap.Any("key", key),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			if s.cfg.OnPanic != nil {
				s.cfg.OnPanic(key, r)
			}
		}
	}()
	task()
}
