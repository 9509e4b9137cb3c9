package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

const DefaultInterval = 3 * time.Second

// Fetcher returns the latest record for a job id.
type Fetcher interface {
	Fetch(ctx context.Context, jobID string) (domain.JobRecord, error)
}

// Poller fetches a job on a fixed cadence until it reaches a terminal status.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	log      *logger.Logger

	skipped atomic.Int64
}

func New(fetcher Fetcher, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		log:      log.With("component", "JobPoller"),
	}
}

func (p *Poller) Interval() time.Duration { return p.interval }

// Skipped counts ticks dropped because a fetch for the same handle was still running.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

type fetchResult struct {
	rec domain.JobRecord
	err error
}

// Poll fetches jobID immediately and then once per interval. Every fetched record is
// handed to onRecord; polling stops when onRecord returns true, when the record is
// terminal, when a fetch fails (the error is returned) or when ctx is done.
//
// Fetches never overlap: a tick that fires while a fetch is outstanding is skipped.
func (p *Poller) Poll(ctx context.Context, jobID string, onRecord func(domain.JobRecord) bool) error {
	if onRecord == nil {
		return errors.New("onRecord callback required")
	}

	results := make(chan fetchResult, 1)
	var busy atomic.Bool
	start := func() {
		if !busy.CompareAndSwap(false, true) {
			p.skipped.Add(1)
			p.log.Debug("poll tick skipped, fetch still in flight", "job_id", jobID)
			return
		}
		go func() {
			rec, err := p.fetcher.Fetch(ctx, jobID)
			results <- fetchResult{rec: rec, err: err}
		}()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	start()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start()
		case res := <-results:
			busy.Store(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if res.err != nil {
				return res.err
			}
			if onRecord(res.rec) || res.rec.Status.Terminal() {
				return nil
			}
		}
	}
}
