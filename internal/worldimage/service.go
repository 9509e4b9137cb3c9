// Package worldimage requests scene images for assembled worlds.
package worldimage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/cache"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

var ErrInvalidWorld = errors.New("world id must be positive")

type Options struct {
	PollInterval time.Duration
	EvictGrace   time.Duration
	Cache        *cache.Cache
	Observer     lifecycle.Observer
	Log          *logger.Logger
}

// Status is the latest known image generation outcome for a world.
type Status struct {
	WorldID    int64           `json:"world_id"`
	JobID      string          `json:"job_id,omitempty"`
	State      lifecycle.State `json:"state"`
	ImageURL   string          `json:"image_url,omitempty"`
	Error      string          `json:"error,omitempty"`
	Generating bool            `json:"generating"`
}

type worldJob struct {
	jobs *lifecycle.Controller

	// outcome fields belong to resultJob; Status shows them only while it is the live job.
	mu        sync.Mutex
	resultJob string
	imageURL  string
	err       string
}

// onComplete and onError ignore handles that are no longer live: a superseded handle may
// still be delivering after Generate has moved on.
func (w *worldJob) onComplete(rec domain.JobRecord) {
	if rec.ID != w.jobs.JobID() {
		return
	}
	var img domain.WorldImage
	decodeErr := rec.DecodeResult(&img)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resultJob = rec.ID
	if decodeErr != nil {
		w.imageURL = ""
		w.err = "The world image could not be read. Please try again."
		return
	}
	w.imageURL = img.ImageURL
	w.err = ""
}

func (w *worldJob) onError(jobID string, err error) {
	if jobID != w.jobs.JobID() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resultJob = jobID
	w.imageURL = ""
	w.err = client.Message(err)
}

// Service keeps one lifecycle controller per world, so regenerating a world's image
// supersedes its earlier request without touching other worlds.
type Service struct {
	backend lifecycle.Backend
	opts    Options
	log     *logger.Logger

	mu     sync.Mutex
	worlds map[int64]*worldJob
	closed bool
}

func New(backend lifecycle.Backend, opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New()
	}
	return &Service{
		backend: backend,
		opts:    opts,
		log:     log.With("component", "WorldImage"),
		worlds:  map[int64]*worldJob{},
	}
}

// Generate submits a generate_world_image job for worldID.
func (s *Service) Generate(ctx context.Context, worldID int64) (domain.JobRecord, error) {
	if worldID <= 0 {
		return domain.JobRecord{}, ErrInvalidWorld
	}
	w, err := s.world(worldID)
	if err != nil {
		return domain.JobRecord{}, err
	}

	w.mu.Lock()
	w.resultJob = ""
	w.imageURL = ""
	w.err = ""
	w.mu.Unlock()

	rec, err := w.jobs.Submit(ctx, domain.JobRequest{
		Type:    domain.TaskGenerateWorldImage,
		Payload: map[string]any{"world_id": worldID},
	})
	if err != nil {
		w.mu.Lock()
		w.resultJob = ""
		w.imageURL = ""
		w.err = client.Message(err)
		w.mu.Unlock()
		return domain.JobRecord{}, fmt.Errorf("submit world image: %w", err)
	}
	s.log.Info("world image requested", "world_id", worldID, "job_id", rec.ID)
	return rec, nil
}

func (s *Service) Status(worldID int64) (Status, bool) {
	s.mu.Lock()
	w, ok := s.worlds[worldID]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	st := Status{
		WorldID:    worldID,
		JobID:      w.jobs.JobID(),
		State:      w.jobs.State(),
		Generating: w.jobs.IsPolling(),
	}
	w.mu.Lock()
	if w.resultJob == st.JobID {
		st.ImageURL = w.imageURL
		st.Error = w.err
	}
	w.mu.Unlock()
	return st, true
}

func (s *Service) world(worldID int64) (*worldJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, lifecycle.ErrClosed
	}
	if w, ok := s.worlds[worldID]; ok {
		return w, nil
	}
	w := &worldJob{
		jobs: lifecycle.New(s.backend, lifecycle.Options{
			PollInterval: s.opts.PollInterval,
			EvictGrace:   s.opts.EvictGrace,
			Cache:        s.opts.Cache,
			Observer:     s.opts.Observer,
			Log:          s.log,
		}),
	}
	w.jobs.SetCallbacks(lifecycle.Callbacks{OnComplete: w.onComplete, OnError: w.onError})
	s.worlds[worldID] = w
	return w, nil
}

func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	worlds := s.worlds
	s.worlds = map[int64]*worldJob{}
	s.mu.Unlock()
	for _, w := range worlds {
		w.jobs.Close()
	}
}
