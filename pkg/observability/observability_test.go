package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		checks     []*HealthCheck
		wantStatus HealthStatus
		wantCode   int
	}{
		{
			name:       "no checks",
			wantStatus: HealthStatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "passing critical check",
			checks: []*HealthCheck{
				SessionStoreCheck(func(context.Context) (int, error) { return 3, nil }),
			},
			wantStatus: HealthStatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "failing optional check degrades",
			checks: []*HealthCheck{
				{Name: "cache", CheckFunc: func(context.Context) error { return errors.New("slow") }},
			},
			wantStatus: HealthStatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name: "failing critical check",
			checks: []*HealthCheck{
				SessionStoreCheck(func(context.Context) (int, error) { return 0, errors.New("redis down") }),
			},
			wantStatus: HealthStatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("test")
			for _, c := range tt.checks {
				hc.RegisterCheck(c)
			}

			rec := httptest.NewRecorder()
			hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "test", resp.Version)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck(&HealthCheck{
		Name:    "hang",
		Timeout: 20 * time.Millisecond,
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Critical: true,
	})

	resp := hc.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks["hang"].Message, "deadline")
}

func TestReadinessHandler(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterCheck(&HealthCheck{Name: "opt", CheckFunc: func(context.Context) error { return errors.New("x") }})

	rec := httptest.NewRecorder()
	hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}

func TestServer(t *testing.T) {
	InitMetrics()
	RecordEvent("text", "ok", time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewHealthChecker("test"))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	base := "http://" + ln.Addr().String()
	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		var resp *http.Response
		require.Eventually(t, func() bool {
			resp, err = http.Get(base + path)
			return err == nil
		}, time.Second, 10*time.Millisecond, path)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		if path == "/metrics" {
			assert.True(t, strings.Contains(string(body), "smartmath_events_total"))
		}
	}

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestRecordCounters(t *testing.T) {
	before := value(t, rateLimitedTotal)
	RecordRateLimited()
	assert.Equal(t, before+1, value(t, rateLimitedTotal))

	before = value(t, calculationsTotal.WithLabelValues("solve", "ok"))
	RecordCalculation("solve", "ok")
	assert.Equal(t, before+1, value(t, calculationsTotal.WithLabelValues("solve", "ok")))
}

func TestSampler(t *testing.T) {
	var calls atomic.Int32
	s := NewSampler(time.Hour, func(context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	}, func() int { return 2 }, nil)

	require.NoError(t, s.Start())
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 7.0, value(t, sessions))
	assert.Equal(t, 2.0, value(t, activeWorkers))
	assert.Greater(t, value(t, goroutines), 0.0)
}

func TestSamplerSessionError(t *testing.T) {
	SetSessions(5)
	s := NewSampler(0, func(context.Context) (int, error) { return 0, errors.New("down") }, nil, nil)
	s.Sample()
	assert.Equal(t, 5.0, value(t, sessions))
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric %v", c.Desc())
	return 0
}
