package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned by CircuitBreaker while it rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// limiterSet lazily creates one rate.Limiter per key.
type limiterSet[K comparable] struct {
	mu       sync.RWMutex
	limiters map[K]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet[K comparable](limit rate.Limit, burst int) *limiterSet[K] {
	return &limiterSet[K]{
		limiters: make(map[K]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (s *limiterSet[K]) get(key K) *rate.Limiter {
	s.mu.RLock()
	limiter, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		return limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := s.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = limiter
	return limiter
}

func (s *limiterSet[K]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// IntervalLimiter enforces a minimum interval between accepted requests
// of the same client. A rejected request leaves the window untouched.
type IntervalLimiter struct {
	clients *limiterSet[int64]
}

// NewIntervalLimiter creates a limiter accepting one request per interval
// and client. A non-positive interval disables limiting.
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &IntervalLimiter{clients: newLimiterSet[int64](limit, 1)}
}

// TooSoon reports whether the request at now must be rejected. On the
// accept path now becomes the client's reference time.
func (l *IntervalLimiter) TooSoon(clientID int64, now time.Time) bool {
	return !l.clients.get(clientID).AllowN(now, 1)
}

// Clients returns the number of clients seen so far.
func (l *IntervalLimiter) Clients() int {
	return l.clients.len()
}

// RateLimiter paces outgoing traffic with a global budget and a budget per
// destination.
type RateLimiter struct {
	globalLimiter *rate.Limiter
	destinations  *limiterSet[int64]
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		destinations:  newLimiterSet[int64](rate.Limit(requestsPerSecond), burst),
	}
}

// Allow checks if a request should be allowed
func (rl *RateLimiter) Allow(destination int64) bool {
	if !rl.globalLimiter.Allow() {
		return false
	}
	return rl.destinations.get(destination).Allow()
}

// Wait blocks until a request can be made
func (rl *RateLimiter) Wait(ctx context.Context, destination int64) error {
	if err := rl.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limit: %w", err)
	}
	if err := rl.destinations.get(destination).Wait(ctx); err != nil {
		return fmt.Errorf("destination rate limit: %w", err)
	}
	return nil
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "closed"
}

// CircuitBreaker stops calling a failing dependency for resetTimeout after
// maxFailures consecutive failures.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu              sync.Mutex
	failures        int
	lastFailureTime time.Time
	state           CircuitState
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        CircuitClosed,
	}
}

// Execute runs fn unless the circuit is open. The lock is not held while
// fn runs.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.failures = 0
	}
	if cb.state == CircuitOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailureTime = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
		}
		return err
	}
	cb.failures = 0
	cb.state = CircuitClosed
	return nil
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
