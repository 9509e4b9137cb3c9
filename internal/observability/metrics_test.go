package observability

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.JobSubmitted(domain.TaskGenerateCharacters, nil)
	m.JobUpdated(domain.JobRecord{})
	m.JobFinished("job-1", domain.TaskGenerateCharacters, lifecycle.StateCompleted, time.Second)
	m.SetSessionsActive(3)

	rr := httptest.NewRecorder()
	m.WriteHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("nil metrics endpoint: want=503 got=%d", rr.Code)
	}
}

func TestJobMetricsExposition(t *testing.T) {
	m := New()
	m.JobSubmitted(domain.TaskGenerateCharacters, nil)
	m.JobSubmitted(domain.TaskGenerateCharacters, &client.TimeoutError{})
	m.JobSubmitted(domain.TaskCreateWorld, errors.New("boom"))
	m.JobUpdated(domain.JobRecord{Type: domain.TaskGenerateCharacters, Status: domain.JobProcessing})
	m.JobFinished("job-2", domain.TaskGenerateCharacters, lifecycle.StateFailed, 4*time.Second)

	if got := m.jobsSubmitted.Value(string(domain.TaskGenerateCharacters), "accepted"); got != 1 {
		t.Fatalf("accepted: want=1 got=%v", got)
	}
	if got := m.jobsSubmitted.Value(string(domain.TaskGenerateCharacters), "timeout"); got != 1 {
		t.Fatalf("timeout: want=1 got=%v", got)
	}
	if got := m.jobDuration.Count(string(domain.TaskGenerateCharacters), "failed"); got != 1 {
		t.Fatalf("duration count: want=1 got=%d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`loresmith_jobs_submitted_total{type="create_world",outcome="error"} 1`,
		`loresmith_job_snapshots_total{type="generate_characters",status="processing"} 1`,
		`loresmith_job_duration_seconds_bucket{type="generate_characters",state="failed",le="5"} 1`,
		`loresmith_job_duration_seconds_bucket{type="generate_characters",state="failed",le="3"} 0`,
		"# TYPE loresmith_api_inflight_requests gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"route", "status"}, []string{`/a"b`})
	want := `{route="/a\"b",status="unknown"}`
	if got != want {
		t.Fatalf("labelString: want=%s got=%s", want, got)
	}
	if le := withLe("", "+Inf"); le != `{le="+Inf"}` {
		t.Fatalf("withLe: got=%s", le)
	}
}
