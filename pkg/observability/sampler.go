package observability

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSampleInterval is how often gauges are refreshed.
const DefaultSampleInterval = 15 * time.Second

// GaugeSource reports a count for a gauge.
type GaugeSource func(ctx context.Context) (int, error)

// Sampler periodically refreshes the runtime, session and worker gauges.
type Sampler struct {
	cron     *cron.Cron
	interval time.Duration
	sessions GaugeSource
	workers  func() int
	logger   *zap.Logger
}

// NewSampler creates a sampler. sessions and workers may be nil.
func NewSampler(interval time.Duration, sessions GaugeSource, workers func() int, logger *zap.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{
		cron:     cron.New(),
		interval: interval,
		sessions: sessions,
		workers:  workers,
		logger:   logger,
	}
}

// Start samples once and then on every interval.
func (s *Sampler) Start() error {
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(schedule, s.Sample); err != nil {
		return fmt.Errorf("schedule sampler: %w", err)
	}
	s.Sample()
	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for a running sample.
func (s *Sampler) Stop() {
	<-s.cron.Stop().Done()
}

// Sample refreshes all gauges once.
func (s *Sampler) Sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	SetMemoryUsage(m.Alloc)
	SetGoroutines(runtime.NumGoroutine())

	if s.workers != nil {
		SetActiveWorkers(s.workers())
	}

	if s.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := s.sessions(ctx)
		if err != nil {
			s.logger.Warn("sample sessions", zap.Error(err))
			return
		}
		SetSessions(n)
	}
}
