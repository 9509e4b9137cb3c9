package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/cache"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/poller"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

const DefaultEvictGrace = 5 * time.Second

var (
	ErrClosed     = errors.New("lifecycle controller closed")
	ErrSuperseded = errors.New("submission superseded by a newer one")
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateErrored    State = "errored"

	// StateSuperseded is only reported to observers, for a handle abandoned before it
	// reached an outcome. The controller itself moves on to the newer handle or to idle.
	StateSuperseded State = "superseded"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateErrored
}

// Callbacks receive the outcome of the current handle. Either field may be nil.
type Callbacks struct {
	OnComplete func(rec domain.JobRecord)
	OnError    func(jobID string, err error)
}

// Backend is the job API the controller drives.
type Backend interface {
	Submit(ctx context.Context, req domain.JobRequest) (domain.JobRecord, error)
	poller.Fetcher
}

type Options struct {
	PollInterval time.Duration
	EvictGrace   time.Duration

	// Cache is shared with readers; a private one is created when nil.
	Cache *cache.Cache

	// Observer sees submissions, snapshots and outcomes; nil observes nothing.
	Observer Observer
	Log      *logger.Logger
}

type handle struct {
	id      string
	kind    domain.TaskKind
	started time.Time
	cancel  context.CancelFunc
	once    sync.Once
}

// Controller tracks one submission slot: at most one live handle at a time. A newer
// Submit supersedes the live handle, whose late results are then ignored.
type Controller struct {
	backend Backend
	poller  *poller.Poller
	cache   *cache.Cache
	grace   time.Duration
	obs     Observer
	log     *logger.Logger

	callbacks atomic.Pointer[Callbacks]

	mu     sync.Mutex
	state  State
	cur    *handle
	gen    uint64
	fatal  bool
	closed bool

	wg sync.WaitGroup
}

func New(backend Backend, opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	grace := opts.EvictGrace
	if grace <= 0 {
		grace = DefaultEvictGrace
	}
	c := opts.Cache
	if c == nil {
		c = cache.New()
	}
	var obs Observer = nopObserver{}
	if opts.Observer != nil {
		obs = opts.Observer
	}
	return &Controller{
		backend: backend,
		poller:  poller.New(backend, opts.PollInterval, log),
		cache:   c,
		grace:   grace,
		obs:     obs,
		log:     log.With("component", "JobLifecycle"),
		state:   StateIdle,
	}
}

// SetCallbacks swaps the active callbacks. Delivery dereferences the cell at call time,
// so a swap takes effect for any outcome not yet delivered.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.callbacks.Store(&cb)
}

func (c *Controller) ClearCallbacks() {
	c.callbacks.Store(nil)
}

// Submit sends req to the backend and starts polling the new handle. Any live handle is
// superseded first. On a submission error the controller settles in StateErrored with
// no handle and the classified error is returned; no callback fires.
func (c *Controller) Submit(ctx context.Context, req domain.JobRequest) (domain.JobRecord, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.JobRecord{}, ErrClosed
	}
	c.supersedeLocked()
	c.gen++
	gen := c.gen
	c.state = StateSubmitting
	c.fatal = false
	c.mu.Unlock()

	rec, err := c.backend.Submit(ctx, req)
	c.obs.JobSubmitted(req.Type, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		if err == nil {
			c.log.Warn("submission landed after being superseded", "job_id", rec.ID, "type", req.Type)
			return rec, ErrSuperseded
		}
		return domain.JobRecord{}, err
	}
	if err != nil {
		c.state = StateErrored
		c.fatal = client.IsFatal(err)
		c.log.Warn("job submission failed", "type", req.Type, "error", err)
		return domain.JobRecord{}, err
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{id: rec.ID, kind: req.Type, started: time.Now(), cancel: cancel}
	c.cur = h
	c.state = StatePolling
	c.cache.Put(rec)
	c.obs.JobUpdated(rec)
	c.log.Info("job submitted", "job_id", rec.ID, "type", req.Type)

	c.wg.Add(1)
	go c.track(pollCtx, h)
	return rec.Clone(), nil
}

func (c *Controller) track(ctx context.Context, h *handle) {
	defer c.wg.Done()
	defer h.cancel()

	var last domain.JobRecord
	err := c.poller.Poll(ctx, h.id, func(rec domain.JobRecord) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cur != h {
			return true
		}
		last = rec
		c.cache.Put(rec)
		c.obs.JobUpdated(rec)
		return false
	})

	switch {
	case ctx.Err() != nil:
		// superseded or closed
		return
	case err != nil:
		c.finish(h, StateErrored, domain.JobRecord{}, err)
	case last.Status == domain.JobCompleted:
		c.finish(h, StateCompleted, last, nil)
	case last.Status == domain.JobFailed:
		c.finish(h, StateFailed, last, &client.JobFailedError{JobID: h.id, Message: last.Error})
	}
}

func (c *Controller) finish(h *handle, state State, rec domain.JobRecord, err error) {
	c.mu.Lock()
	if c.cur != h {
		c.mu.Unlock()
		return
	}
	c.state = state
	if err != nil {
		c.fatal = true
	}
	c.cache.EvictAfter(h.id, c.grace)
	c.mu.Unlock()
	c.obs.JobFinished(h.id, h.kind, state, time.Since(h.started))

	h.once.Do(func() {
		cb := c.callbacks.Load()
		if cb == nil {
			return
		}
		if err != nil {
			c.log.Warn("job ended with error", "job_id", h.id, "state", string(state), "error", err)
			if cb.OnError != nil {
				cb.OnError(h.id, err)
			}
			return
		}
		c.log.Info("job completed", "job_id", h.id)
		if cb.OnComplete != nil {
			cb.OnComplete(rec.Clone())
		}
	})
}

func (c *Controller) supersedeLocked() {
	if c.cur == nil {
		return
	}
	h := c.cur
	h.cancel()
	// a delivered handle keeps its grace window; a live one is dropped now
	if !c.state.Terminal() {
		c.cache.Remove(h.id)
		c.obs.JobFinished(h.id, h.kind, StateSuperseded, time.Since(h.started))
	}
	c.log.Debug("job handle superseded", "job_id", h.id)
	c.cur = nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsPolling() bool {
	return c.State() == StatePolling
}

// Fatal reports whether the current handle hit an unrecoverable outcome. A new Submit
// clears it.
func (c *Controller) Fatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Controller) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.id
}

// Current returns the latest cached snapshot of the live handle.
func (c *Controller) Current() (domain.JobRecord, bool) {
	id := c.JobID()
	if id == "" {
		return domain.JobRecord{}, false
	}
	return c.cache.Get(id)
}

func (c *Controller) Cache() cache.Reader { return c.cache }

func (c *Controller) Subscribe(jobID string) (<-chan domain.JobRecord, func()) {
	return c.cache.Subscribe(jobID)
}

// Close stops tracking without delivering anything and waits for poll loops to exit. A
// live handle is reported to the observer as superseded.
func (c *Controller) Close() {
	c.ClearCallbacks()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.supersedeLocked()
	c.state = StateIdle
	c.mu.Unlock()
	c.wg.Wait()
}
