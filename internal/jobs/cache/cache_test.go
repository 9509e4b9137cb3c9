package cache

import (
	"testing"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
)

func TestGetReturnsCopies(t *testing.T) {
	c := New()
	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobCompleted, Result: []byte(`[1]`)})

	rec, ok := c.Get("job-1")
	if !ok {
		t.Fatalf("Get: want hit")
	}
	rec.Result[0] = 'x'
	again, _ := c.Get("job-1")
	if string(again.Result) != "[1]" {
		t.Fatalf("cached record mutated through a reader: got=%s", again.Result)
	}
}

func TestSubscribeSeesCurrentThenLatest(t *testing.T) {
	c := New()
	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobPending})

	ch, cancel := c.Subscribe("job-1")
	defer cancel()

	if rec := <-ch; rec.Status != domain.JobPending {
		t.Fatalf("initial: want=pending got=%s", rec.Status)
	}

	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobProcessing, Progress: 10})
	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobProcessing, Progress: 60})
	rec := <-ch
	if rec.Progress != 60 {
		t.Fatalf("slow subscriber should get the newest snapshot: want=60 got=%d", rec.Progress)
	}
}

func TestEvictAfterGraceClosesSubscribers(t *testing.T) {
	c := New()
	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobCompleted})
	ch, cancel := c.Subscribe("job-1")
	defer cancel()
	<-ch

	c.EvictAfter("job-1", 20*time.Millisecond)
	if _, ok := c.Get("job-1"); !ok {
		t.Fatalf("record must stay readable during the grace window")
	}

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("unexpected snapshot after eviction")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after eviction")
	}
	if _, ok := c.Get("job-1"); ok {
		t.Fatalf("record still cached after grace")
	}
	if c.Len() != 0 {
		t.Fatalf("len: want=0 got=%d", c.Len())
	}
}

func TestCancelSubscriptionIsIdempotent(t *testing.T) {
	c := New()
	ch, cancel := c.Subscribe("job-1")
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatalf("channel should be closed after cancel")
	}
	c.Put(domain.JobRecord{ID: "job-1", Status: domain.JobPending})
	c.Remove("job-1")
}
