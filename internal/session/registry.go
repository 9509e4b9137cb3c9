// Package session maps browsing sessions to their creation pipelines.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/loresmith/internal/jobs/cache"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/pipeline"
	"github.com/yungbote/loresmith/internal/pipeline/selection"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrUserRequired  = errors.New("user_id is required")
	ErrTooManyActive = errors.New("too many active sessions")
)

type CreateRequest struct {
	Theme  string `json:"theme"`
	UserID int64  `json:"user_id"`
	Count  int    `json:"count,omitempty"`
}

type Options struct {
	PollInterval time.Duration
	EvictGrace   time.Duration
	MaxSessions  int
	DefaultCount int

	// Cache is shared by every session's lifecycle controller so job snapshots can be
	// read by id regardless of which session owns them.
	Cache *cache.Cache

	// Observer is attached to every session's lifecycle controller.
	Observer lifecycle.Observer

	// OnWorldCreated is told which session produced which world.
	OnWorldCreated func(sessionID string, worldID int64)
	Log            *logger.Logger
}

type entry struct {
	ctl     *pipeline.Controller
	created time.Time
}

type Registry struct {
	backend lifecycle.Backend
	store   selection.Store
	opts    Options
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]entry
	// reserved counts slots held by Create calls that have not registered yet.
	reserved int
}

func NewRegistry(backend lifecycle.Backend, store selection.Store, opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New()
	}
	return &Registry{
		backend:  backend,
		store:    store,
		opts:     opts,
		log:      log.With("component", "SessionRegistry"),
		sessions: map[string]entry{},
	}
}

func (r *Registry) Cache() *cache.Cache { return r.opts.Cache }

// Create opens a session, starts its pipeline and submits the first stage.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*pipeline.Controller, error) {
	if req.UserID <= 0 {
		return nil, ErrUserRequired
	}
	if !r.reserve() {
		return nil, ErrTooManyActive
	}

	if req.Count <= 0 {
		req.Count = r.opts.DefaultCount
	}
	id := uuid.NewString()
	jobs := lifecycle.New(r.backend, lifecycle.Options{
		PollInterval: r.opts.PollInterval,
		EvictGrace:   r.opts.EvictGrace,
		Cache:        r.opts.Cache,
		Observer:     r.opts.Observer,
		Log:          r.log,
	})
	var onWorld func(int64)
	if hook := r.opts.OnWorldCreated; hook != nil {
		onWorld = func(worldID int64) { hook(id, worldID) }
	}
	ctl, err := pipeline.New(pipeline.Options{
		SessionID:      id,
		Theme:          req.Theme,
		UserID:         req.UserID,
		Count:          req.Count,
		Store:          r.store,
		Jobs:           jobs,
		OnWorldCreated: onWorld,
		Log:            r.log,
	})
	if err != nil {
		r.mu.Lock()
		r.reserved--
		r.mu.Unlock()
		jobs.Close()
		return nil, fmt.Errorf("new pipeline: %w", err)
	}

	r.mu.Lock()
	r.reserved--
	r.sessions[id] = entry{ctl: ctl, created: time.Now()}
	r.mu.Unlock()

	if err := ctl.Start(ctx); err != nil {
		_ = r.Delete(context.WithoutCancel(ctx), id)
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	r.log.Info("session created", "session_id", id, "user_id", req.UserID)
	return ctl, nil
}

// reserve claims a slot under MaxSessions in the same critical section as the count.
func (r *Registry) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.MaxSessions > 0 && len(r.sessions)+r.reserved >= r.opts.MaxSessions {
		return false
	}
	r.reserved++
	return true
}

func (r *Registry) Get(id string) (*pipeline.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e.ctl, ok
}

// IDs lists live sessions, oldest first.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.sessions[ids[i]].created.Before(r.sessions[ids[j]].created)
	})
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Delete tears down a session's pipeline and its selections.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := e.ctl.Close(ctx); err != nil {
		return err
	}
	r.log.Info("session closed", "session_id", id)
	return nil
}

// Close tears down every session.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
