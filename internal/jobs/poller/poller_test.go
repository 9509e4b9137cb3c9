package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []domain.JobStatus
	calls    int
	delay    time.Duration
	err      error
	errAt    int

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *scriptedFetcher) Fetch(ctx context.Context, jobID string) (domain.JobRecord, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.JobRecord{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if f.err != nil && idx == f.errAt {
		return domain.JobRecord{}, f.err
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return domain.JobRecord{ID: jobID, Status: f.statuses[idx]}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	f := &scriptedFetcher{statuses: []domain.JobStatus{domain.JobPending, domain.JobProcessing, domain.JobCompleted, domain.JobCompleted}}
	p := New(f, 5*time.Millisecond, nil)

	var seen []domain.JobStatus
	err := p.Poll(context.Background(), "job-1", func(rec domain.JobRecord) bool {
		seen = append(seen, rec.Status)
		return false
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	want := []domain.JobStatus{domain.JobPending, domain.JobProcessing, domain.JobCompleted}
	if len(seen) != len(want) {
		t.Fatalf("observed: want=%v got=%v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("observed[%d]: want=%s got=%s", i, want[i], seen[i])
		}
	}
	time.Sleep(30 * time.Millisecond)
	if got := f.Calls(); got != 3 {
		t.Fatalf("fetches after terminal: want=3 got=%d", got)
	}
}

func TestPollReturnsFetchError(t *testing.T) {
	boom := errors.New("connection refused")
	f := &scriptedFetcher{statuses: []domain.JobStatus{domain.JobPending}, err: boom, errAt: 1}
	p := New(f, 5*time.Millisecond, nil)

	err := p.Poll(context.Background(), "job-1", func(domain.JobRecord) bool { return false })
	if !errors.Is(err, boom) {
		t.Fatalf("want fetch error got=%v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := f.Calls(); got != 2 {
		t.Fatalf("fetches after error: want=2 got=%d", got)
	}
}

func TestPollSkipsOverlappingTicks(t *testing.T) {
	f := &scriptedFetcher{statuses: []domain.JobStatus{domain.JobProcessing, domain.JobCompleted}, delay: 60 * time.Millisecond}
	p := New(f, 10*time.Millisecond, nil)

	if err := p.Poll(context.Background(), "job-1", func(domain.JobRecord) bool { return false }); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if got := f.maxInflight.Load(); got != 1 {
		t.Fatalf("max concurrent fetches: want=1 got=%d", got)
	}
	if p.Skipped() == 0 {
		t.Fatalf("expected skipped ticks while fetch was slow")
	}
	if got := f.Calls(); got != 2 {
		t.Fatalf("skipped ticks must not be queued: want=2 fetches got=%d", got)
	}
}

func TestPollHonoursCancellation(t *testing.T) {
	f := &scriptedFetcher{statuses: []domain.JobStatus{domain.JobProcessing}}
	p := New(f, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	err := p.Poll(ctx, "job-1", func(domain.JobRecord) bool { return false })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want ctx error got=%v", err)
	}
}

func TestPollCallbackCanStopEarly(t *testing.T) {
	f := &scriptedFetcher{statuses: []domain.JobStatus{domain.JobProcessing}}
	p := New(f, 5*time.Millisecond, nil)

	n := 0
	err := p.Poll(context.Background(), "job-1", func(domain.JobRecord) bool {
		n++
		return n == 2
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 2 {
		t.Fatalf("callback count: want=2 got=%d", n)
	}
}
