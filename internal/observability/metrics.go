package observability

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/platform/envutil"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

// Metrics is the process-wide metric set. A nil *Metrics is valid and records nothing,
// so call sites never need to check whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	jobsSubmitted *CounterVec
	jobSnapshots  *CounterVec
	jobsFinished  *CounterVec
	jobDuration   *HistogramVec

	sessionsActive *Gauge
	redisUp        *Gauge
	redisPing      *Gauge
}

var _ lifecycle.Observer = (*Metrics)(nil)

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide set once. It returns nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("loresmith_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"loresmith_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("loresmith_api_inflight_requests", "In-flight API requests."),

		jobsSubmitted: NewCounterVec("loresmith_jobs_submitted_total", "Job submissions by type/outcome.", []string{"type", "outcome"}),
		jobSnapshots:  NewCounterVec("loresmith_job_snapshots_total", "Job snapshots observed by type/status.", []string{"type", "status"}),
		jobsFinished:  NewCounterVec("loresmith_jobs_finished_total", "Tracked jobs that reached an outcome by type/state.", []string{"type", "state"}),
		jobDuration: NewHistogramVec(
			"loresmith_job_duration_seconds",
			"Time from submission to outcome by type/state.",
			[]string{"type", "state"},
			[]float64{1, 3, 5, 10, 30, 60, 120, 300, 600},
		),

		sessionsActive: NewGauge("loresmith_sessions_active", "Open creation sessions."),
		redisUp:        NewGauge("loresmith_redis_up", "Redis availability (1=up)."),
		redisPing:      NewGauge("loresmith_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobsSubmitted, m.jobSnapshots, m.jobsFinished, m.jobDuration,
		m.sessionsActive, m.redisUp, m.redisPing,
	}
	for _, mw := range writers {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) JobSubmitted(kind domain.TaskKind, err error) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc(string(kind), submitOutcome(err))
}

func (m *Metrics) JobUpdated(rec domain.JobRecord) {
	if m == nil {
		return
	}
	m.jobSnapshots.Inc(string(rec.Type), string(rec.Status))
}

func (m *Metrics) JobFinished(_ string, kind domain.TaskKind, state lifecycle.State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.Inc(string(kind), string(state))
	m.jobDuration.Observe(elapsed.Seconds(), string(kind), string(state))
}

func submitOutcome(err error) string {
	if err == nil {
		return "accepted"
	}
	switch err.(type) {
	case *client.ValidationError:
		return "invalid"
	case *client.TimeoutError:
		return "timeout"
	case *client.NetworkError:
		return "network"
	default:
		return "error"
	}
}

// StartRedisCollector pings rdb on the scrape interval until ctx ends. The client is
// owned by the caller and is not closed here.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil && ctx.Err() == nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}
