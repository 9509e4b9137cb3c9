// Package jobstest provides a scripted in-process job backend for tests.
package jobstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/domain"
)

// Step is one observed state of a job. Each GET /jobs/{id} consumes the next step; the
// last step repeats once the script is exhausted.
type Step struct {
	Status   domain.JobStatus
	Progress int
	Message  string
	Result   any
	Error    string

	// HTTPStatus makes the fetch answer with this status instead of a record.
	HTTPStatus int
	// Delay holds the fetch response for this long.
	Delay time.Duration
}

func Pending() Step { return Step{Status: domain.JobPending, Message: "Job created, waiting to start..."} }
func Processing() Step { return Step{Status: domain.JobProcessing, Progress: 50, Message: "Working..."} }
func Completed(result any) Step {
	return Step{Status: domain.JobCompleted, Progress: 100, Message: "Job completed successfully", Result: result}
}
func Failed(msg string) Step {
	return Step{Status: domain.JobFailed, Error: msg, Message: "Job failed: " + msg}
}
func Gone() Step { return Step{HTTPStatus: http.StatusNotFound} }
func ServerError() Step { return Step{HTTPStatus: http.StatusInternalServerError} }

type job struct {
	rec     domain.JobRecord
	steps   []Step
	cursor  int
	fetches int
}

// Backend mimics POST /jobs and GET /jobs/{id}.
type Backend struct {
	URL string

	mu           sync.Mutex
	seq          int
	jobs         map[string]*job
	submitted    []domain.JobRequest
	scripts      map[domain.TaskKind][][]Step
	fallback     []Step
	submitStatus int
	authHeaders  []string
	inflight     map[string]int
	maxInflight  map[string]int

	srv *httptest.Server
}

// New starts a backend whose jobs complete with an empty list unless scripted.
func New(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &Backend{
		jobs:        map[string]*job{},
		scripts:     map[domain.TaskKind][][]Step{},
		fallback:    []Step{Pending(), Completed([]any{})},
		inflight:    map[string]int{},
		maxInflight: map[string]int{},
	}
	r := gin.New()
	r.POST("/jobs", b.handleSubmit)
	r.GET("/jobs/:id", b.handleFetch)
	b.srv = httptest.NewServer(r)
	b.URL = b.srv.URL
	t.Cleanup(b.srv.Close)
	return b
}

// Script queues a step sequence for the next job of the given kind. Multiple calls queue
// scripts for subsequent submissions in order.
func (b *Backend) Script(kind domain.TaskKind, steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[kind] = append(b.scripts[kind], steps)
}

// Default replaces the script used when no kind-specific script is queued.
func (b *Backend) Default(steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = steps
}

// FailSubmit makes subsequent submissions answer with status (0 restores success).
func (b *Backend) FailSubmit(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitStatus = status
}

func (b *Backend) Submitted() []domain.JobRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.JobRequest(nil), b.submitted...)
}

func (b *Backend) SubmittedKinds() []domain.TaskKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.TaskKind, 0, len(b.submitted))
	for _, r := range b.submitted {
		out = append(out, r.Type)
	}
	return out
}

func (b *Backend) Fetches(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[id]; ok {
		return j.fetches
	}
	return 0
}

// MaxConcurrentFetches reports the highest number of overlapping fetches seen for id.
func (b *Backend) MaxConcurrentFetches(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInflight[id]
}

func (b *Backend) AuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func (b *Backend) handleSubmit(c *gin.Context) {
	var req domain.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "Invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.authHeaders = append(b.authHeaders, c.GetHeader("Authorization"))
	if b.submitStatus != 0 {
		c.JSON(b.submitStatus, gin.H{"error": gin.H{"message": http.StatusText(b.submitStatus)}})
		return
	}
	b.submitted = append(b.submitted, req)
	b.seq++
	id := fmt.Sprintf("job-%d", b.seq)

	steps := b.fallback
	if queued := b.scripts[req.Type]; len(queued) > 0 {
		steps = queued[0]
		b.scripts[req.Type] = queued[1:]
	}
	now := time.Now().UTC()
	rec := domain.JobRecord{
		ID:        id,
		Type:      req.Type,
		Status:    domain.JobPending,
		Message:   "Job created, waiting to start...",
		Payload:   req.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.jobs[id] = &job{rec: rec, steps: steps}
	c.JSON(http.StatusCreated, rec)
}

func (b *Backend) handleFetch(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	j, ok := b.jobs[id]
	if !ok {
		b.mu.Unlock()
		c.String(http.StatusNotFound, "Job not found")
		return
	}
	j.fetches++
	b.inflight[id]++
	if b.inflight[id] > b.maxInflight[id] {
		b.maxInflight[id] = b.inflight[id]
	}
	step := Step{Status: j.rec.Status}
	if len(j.steps) > 0 {
		idx := j.cursor
		if idx >= len(j.steps) {
			idx = len(j.steps) - 1
		}
		step = j.steps[idx]
		j.cursor++
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inflight[id]--
		b.mu.Unlock()
	}()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-c.Request.Context().Done():
			return
		}
	}
	if step.HTTPStatus != 0 {
		c.String(step.HTTPStatus, http.StatusText(step.HTTPStatus))
		return
	}

	b.mu.Lock()
	rec := j.rec
	rec.Status = step.Status
	rec.Progress = step.Progress
	rec.Message = step.Message
	rec.Error = step.Error
	rec.UpdatedAt = time.Now().UTC()
	if step.Result != nil {
		raw, _ := json.Marshal(step.Result)
		rec.Result = raw
	}
	if step.Status.Terminal() {
		done := rec.UpdatedAt
		rec.CompletedAt = &done
	}
	j.rec = rec
	b.mu.Unlock()

	c.JSON(http.StatusOK, rec)
}
