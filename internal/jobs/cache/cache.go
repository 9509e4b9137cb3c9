package cache

import (
	"sync"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
)

// Reader is the read-only view handed to UI-facing code.
type Reader interface {
	Get(jobID string) (domain.JobRecord, bool)
	Subscribe(jobID string) (<-chan domain.JobRecord, func())
}

// Cache holds the latest snapshot per job handle. Any number of readers may Get or
// Subscribe; the lifecycle controller is the only writer.
type Cache struct {
	mu      sync.RWMutex
	records map[string]domain.JobRecord
	subs    map[string]map[uint64]chan domain.JobRecord
	timers  map[string]*time.Timer
	nextSub uint64
}

func New() *Cache {
	return &Cache{
		records: map[string]domain.JobRecord{},
		subs:    map[string]map[uint64]chan domain.JobRecord{},
		timers:  map[string]*time.Timer{},
	}
}

func (c *Cache) Get(jobID string) (domain.JobRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[jobID]
	if !ok {
		return domain.JobRecord{}, false
	}
	return rec.Clone(), true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Put stores rec and fans it out to subscribers. Slow subscribers only ever see the
// newest snapshot; intermediate ones are dropped.
func (c *Cache) Put(rec domain.JobRecord) {
	if rec.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ID] = rec.Clone()
	for _, ch := range c.subs[rec.ID] {
		offerLatest(ch, rec.Clone())
	}
}

// Remove evicts a record immediately and ends its subscriptions.
func (c *Cache) Remove(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(jobID)
}

// EvictAfter removes the record once grace has elapsed, leaving late readers a window
// to re-read the final snapshot.
func (c *Cache) EvictAfter(jobID string, grace time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[jobID]; ok {
		t.Stop()
	}
	c.timers[jobID] = time.AfterFunc(grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.removeLocked(jobID)
	})
}

// Subscribe streams snapshots for jobID, starting with the current one if cached.
// The channel closes when the record is evicted; call the returned func to stop early.
func (c *Cache) Subscribe(jobID string) (<-chan domain.JobRecord, func()) {
	ch := make(chan domain.JobRecord, 1)

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs[jobID] == nil {
		c.subs[jobID] = map[uint64]chan domain.JobRecord{}
	}
	c.subs[jobID][id] = ch
	if rec, ok := c.records[jobID]; ok {
		ch <- rec.Clone()
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if subs, ok := c.subs[jobID]; ok {
				if sub, ok := subs[id]; ok {
					delete(subs, id)
					close(sub)
				}
				if len(subs) == 0 {
					delete(c.subs, jobID)
				}
			}
		})
	}
}

func (c *Cache) removeLocked(jobID string) {
	delete(c.records, jobID)
	if t, ok := c.timers[jobID]; ok {
		t.Stop()
		delete(c.timers, jobID)
	}
	for id, ch := range c.subs[jobID] {
		close(ch)
		delete(c.subs[jobID], id)
	}
	delete(c.subs, jobID)
}

func offerLatest(ch chan domain.JobRecord, rec domain.JobRecord) {
	select {
	case ch <- rec:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- rec:
	default:
	}
}
