package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/optimistic"
	"github.com/yungbote/loresmith/internal/pipeline/selection"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

var (
	ErrClosed             = errors.New("pipeline closed")
	ErrIndexOutOfRange    = errors.New("selection index out of range")
	ErrNotSelectable      = errors.New("no selectable stage is active")
	ErrFinalizeNotReached = errors.New("finalize has not been reached")
)

const (
	DefaultTheme = "fantasy"

	msgUnreadableOptions = "The generated options could not be read. Please try again."
	msgUnreadableWorld   = "Failed to generate draft world"
)

type Options struct {
	SessionID string
	Theme     string
	UserID    int64
	Count     int

	Store selection.Store
	// Jobs is owned by the pipeline from here on; Close closes it.
	Jobs *lifecycle.Controller

	// OnWorldCreated fires once the terminal create_world job reports its world id.
	OnWorldCreated func(worldID int64)
	Log            *logger.Logger
}

// View is a point-in-time snapshot of the pipeline for rendering.
type View struct {
	SessionID     string                `json:"session_id"`
	Theme         string                `json:"theme"`
	Stage         domain.Stage          `json:"stage"`
	StageConfig   StageConfig           `json:"stage_config"`
	Options       []domain.Artifact     `json:"options"`
	SelectedIndex *int                  `json:"selected_index"`
	Regenerated   bool                  `json:"regenerated"`
	IsLoading     bool                  `json:"is_loading"`
	Error         string                `json:"error,omitempty"`
	FinalizeError string                `json:"finalize_error,omitempty"`
	Finalizing    bool                  `json:"finalizing"`
	WorldID       int64                 `json:"world_id,omitempty"`
	Job           *domain.JobRecord     `json:"job,omitempty"`
	Selection     domain.SelectionState `json:"selection"`
}

type outcome struct {
	rec domain.JobRecord
	err error
}

// Controller walks one session through characters, factions, settings, events and
// relics, then assembles the world. All job traffic goes through a single lifecycle
// controller; the mutex is never held across a network call.
type Controller struct {
	sessionID string
	theme     string
	userID    int64
	count     int
	store     selection.Store
	jobs      *lifecycle.Controller
	onWorld   func(int64)
	log       *logger.Logger

	mu          sync.Mutex
	stage       domain.Stage
	entered     domain.Stage
	options     []domain.Artifact
	selected    *int
	regenerated bool
	loading     bool
	err         string
	finalizeErr string
	finalizing  bool
	worldID     int64
	picks       domain.SelectionState

	// slot and jobID identify the handle whose outcome is expected. Outcomes that race
	// ahead of Submit returning are parked in early until the id is known.
	slot       domain.Stage
	jobID      string
	submitSeq  uint64
	submitting bool
	early      map[string]outcome

	closed bool
}

func New(opts Options) (*Controller, error) {
	if strings.TrimSpace(opts.SessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("selection store required")
	}
	if opts.Jobs == nil {
		return nil, fmt.Errorf("lifecycle controller required")
	}
	theme := strings.TrimSpace(opts.Theme)
	if theme == "" {
		theme = DefaultTheme
	}
	count := opts.Count
	if count <= 0 {
		count = DefaultCount
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	c := &Controller{
		sessionID: opts.SessionID,
		theme:     theme,
		userID:    opts.UserID,
		count:     count,
		store:     opts.Store,
		jobs:      opts.Jobs,
		onWorld:   opts.OnWorldCreated,
		log:       log.With("component", "StagePipeline", "session_id", opts.SessionID),
		stage:     domain.StageCharacters,
		picks:     domain.SelectionState{},
	}
	c.jobs.SetCallbacks(lifecycle.Callbacks{
		OnComplete: c.onComplete,
		OnError:    c.onError,
	})
	return c, nil
}

func (c *Controller) SessionID() string { return c.sessionID }

// Start clears the session's selections, resets to the first stage and enters it.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.store.Init(ctx, c.sessionID); err != nil {
		return fmt.Errorf("init selection: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stage = domain.StageCharacters
	c.entered = ""
	c.options = nil
	c.selected = nil
	c.regenerated = false
	c.loading = false
	c.err = ""
	c.finalizeErr = ""
	c.finalizing = false
	c.worldID = 0
	c.picks = domain.SelectionState{}
	c.jobID = ""
	c.submitSeq++
	c.mu.Unlock()

	c.log.Info("pipeline started", "theme", c.theme)
	return c.Enter(ctx)
}

// Enter submits the current stage's generation job unless this stage was already
// entered. Calling it repeatedly for the same stage is a no-op.
func (c *Controller) Enter(ctx context.Context) error {
	return c.submitStage(ctx, false)
}

// Regenerate drops the current options and always submits a fresh job for the stage.
func (c *Controller) Regenerate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.stage.Valid() {
		c.mu.Unlock()
		return ErrNotSelectable
	}
	c.options = nil
	c.selected = nil
	c.regenerated = true
	c.releaseJobLocked()
	c.mu.Unlock()
	return c.submitStage(ctx, true)
}

// Retry re-runs the submission path of the current step after a failure. At the
// terminal step it resubmits only the world assembly.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	atFinalize := c.stage == domain.StageFinalize
	if !atFinalize {
		c.options = nil
		c.selected = nil
		c.releaseJobLocked()
	}
	c.mu.Unlock()
	if atFinalize {
		return c.RetryFinalize(ctx)
	}
	return c.submitStage(ctx, true)
}

// SelectCard toggles the pick at i. The tentative pick is visible immediately and is
// reverted if it cannot be written to the selection store.
func (c *Controller) SelectCard(ctx context.Context, i int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.stage.Valid() {
		c.mu.Unlock()
		return ErrNotSelectable
	}
	if i < 0 || i >= len(c.options) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(c.options))
	}
	stage := c.stage
	c.mu.Unlock()

	var draft selection.Draft
	_, err := optimistic.Run(ctx, optimistic.Mutation[*int, struct{}]{
		Snapshot: func() *int {
			c.mu.Lock()
			defer c.mu.Unlock()
			return copyIndex(c.selected)
		},
		Apply: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.selected != nil && *c.selected == i {
				c.selected = nil
			} else {
				c.selected = &i
			}
			draft = selection.Draft{Stage: stage, Index: copyIndex(c.selected)}
			if c.selected != nil && *c.selected < len(c.options) {
				a := c.options[*c.selected]
				draft.Artifact = &a
			}
		},
		Commit: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.store.SaveDraft(ctx, c.sessionID, draft)
		},
		Rollback: func(prev *int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.stage == stage {
				c.selected = prev
			}
		},
	})
	if err != nil {
		c.log.Warn("selection draft not saved, reverted", "stage", string(stage), "error", err)
		return fmt.Errorf("save selection draft: %w", err)
	}
	return nil
}

// Advance commits the selected option and moves to the next stage. After the last
// stage it submits the world assembly. Without a selection it does nothing.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.stage.Valid() || c.selected == nil || *c.selected >= len(c.options) {
		c.mu.Unlock()
		return nil
	}
	stage := c.stage
	key := stage.SelectionKey()
	picked := c.options[*c.selected]
	c.mu.Unlock()

	if err := c.store.Put(ctx, c.sessionID, key, picked); err != nil {
		return fmt.Errorf("persist %s selection: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.stage != stage {
		// a concurrent Advance already moved on
		c.mu.Unlock()
		return nil
	}
	c.picks[key] = picked
	next := stage.Next()
	c.stage = next
	c.options = nil
	c.selected = nil
	c.regenerated = false
	c.err = ""
	c.mu.Unlock()

	c.log.Info("stage advanced", "from", string(stage), "to", string(next), "picked", picked.Name)
	if next == domain.StageFinalize {
		return c.finalize(ctx)
	}
	return c.submitStage(ctx, false)
}

// RetryFinalize resubmits the create_world job with the selections already made.
func (c *Controller) RetryFinalize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.stage != domain.StageFinalize {
		c.mu.Unlock()
		return ErrFinalizeNotReached
	}
	if c.finalizing || c.worldID != 0 {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.finalize(ctx)
}

func (c *Controller) submitStage(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	stage := c.stage
	if !stage.Valid() {
		c.mu.Unlock()
		return nil
	}
	if !force && c.entered == stage {
		c.mu.Unlock()
		return nil
	}
	c.entered = stage
	c.loading = true
	c.err = ""
	seq := c.beginSubmitLocked(stage)
	req := domain.JobRequest{
		Type:    stage.TaskKind(),
		Payload: stagePayload(stage, c.theme, c.count, c.picks),
	}
	c.mu.Unlock()

	c.log.Debug("stage entered", "stage", string(stage), "forced", force)
	rec, err := c.jobs.Submit(client.WithUserID(ctx, c.userID), req)
	c.afterSubmit(seq, stage, rec, err)
	return nil
}

func (c *Controller) finalize(ctx context.Context) error {
	picks, err := c.store.Load(ctx, c.sessionID)
	if err != nil {
		c.mu.Lock()
		c.finalizeErr = msgUnreadableWorld
		c.mu.Unlock()
		return fmt.Errorf("load selection: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.finalizing = true
	c.finalizeErr = ""
	seq := c.beginSubmitLocked(domain.StageFinalize)
	req := domain.JobRequest{
		Type:    domain.TaskCreateWorld,
		Payload: finalizePayload(c.theme, c.userID, picks),
	}
	c.mu.Unlock()

	c.log.Info("assembling world", "picks", len(picks))
	rec, err := c.jobs.Submit(client.WithUserID(ctx, c.userID), req)
	c.afterSubmit(seq, domain.StageFinalize, rec, err)
	return nil
}

// releaseJobLocked unbinds the live handle so none of its outcomes, early or late, can
// reach the state. Any submission still in flight is orphaned too.
func (c *Controller) releaseJobLocked() {
	c.submitSeq++
	c.jobID = ""
	c.submitting = false
	c.early = nil
}

func (c *Controller) beginSubmitLocked(slot domain.Stage) uint64 {
	c.submitSeq++
	c.slot = slot
	c.jobID = ""
	c.submitting = true
	c.early = map[string]outcome{}
	return c.submitSeq
}

// afterSubmit binds the new handle, or records a submission failure on the view.
func (c *Controller) afterSubmit(seq uint64, slot domain.Stage, rec domain.JobRecord, err error) {
	c.mu.Lock()
	if c.closed || c.submitSeq != seq {
		c.mu.Unlock()
		return
	}
	c.submitting = false
	if err != nil {
		c.early = nil
		if errors.Is(err, lifecycle.ErrSuperseded) {
			c.mu.Unlock()
			return
		}
		c.recordFailureLocked(slot, err)
		c.mu.Unlock()
		c.log.Warn("job submission failed", "slot", string(slot), "error", err)
		return
	}
	c.jobID = rec.ID
	var after func()
	if o, ok := c.early[rec.ID]; ok {
		after = c.applyLocked(o)
	}
	c.early = nil
	c.mu.Unlock()
	if after != nil {
		after()
	}
}

func (c *Controller) onComplete(rec domain.JobRecord) {
	c.deliver(rec.ID, outcome{rec: rec})
}

func (c *Controller) onError(jobID string, err error) {
	c.deliver(jobID, outcome{err: err})
}

func (c *Controller) deliver(jobID string, o outcome) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if jobID != c.jobID {
		if c.jobID == "" && c.submitting {
			c.early[jobID] = o
		}
		c.mu.Unlock()
		return
	}
	after := c.applyLocked(o)
	c.mu.Unlock()
	if after != nil {
		after()
	}
}

// applyLocked folds a job outcome into the state and returns a hook to run once the
// lock is released.
func (c *Controller) applyLocked(o outcome) func() {
	if c.slot == domain.StageFinalize {
		c.finalizing = false
		if o.err != nil {
			c.finalizeErr = client.Message(o.err)
			c.log.Warn("world assembly failed", "error", o.err)
			return nil
		}
		var created domain.WorldCreated
		if err := o.rec.DecodeResult(&created); err != nil || created.WorldID == 0 {
			c.finalizeErr = msgUnreadableWorld
			c.log.Warn("world assembly returned no world id", "job_id", o.rec.ID, "error", err)
			return nil
		}
		c.worldID = created.WorldID
		c.log.Info("world created", "world_id", created.WorldID)
		hook := c.onWorld
		if hook == nil {
			return nil
		}
		id := created.WorldID
		return func() { hook(id) }
	}

	c.loading = false
	if o.err != nil {
		c.options = nil
		c.selected = nil
		c.err = client.Message(o.err)
		return nil
	}
	var arts []domain.Artifact
	if err := o.rec.DecodeResult(&arts); err != nil {
		c.options = nil
		c.selected = nil
		c.err = msgUnreadableOptions
		c.log.Warn("stage result unreadable", "job_id", o.rec.ID, "error", err)
		return nil
	}
	c.options = arts
	c.selected = nil
	c.err = ""
	return nil
}

func (c *Controller) recordFailureLocked(slot domain.Stage, err error) {
	if slot == domain.StageFinalize {
		c.finalizing = false
		c.finalizeErr = client.Message(err)
		return
	}
	c.loading = false
	c.err = client.Message(err)
}

func (c *Controller) View() View {
	c.mu.Lock()
	v := View{
		SessionID:     c.sessionID,
		Theme:         c.theme,
		Stage:         c.stage,
		StageConfig:   ConfigFor(c.stage),
		Options:       append([]domain.Artifact(nil), c.options...),
		SelectedIndex: copyIndex(c.selected),
		Regenerated:   c.regenerated,
		IsLoading:     c.loading,
		Error:         c.err,
		FinalizeError: c.finalizeErr,
		Finalizing:    c.finalizing,
		WorldID:       c.worldID,
		Selection:     c.picks.Clone(),
	}
	jobID := c.jobID
	c.mu.Unlock()

	if jobID != "" {
		if rec, ok := c.jobs.Cache().Get(jobID); ok {
			v.Job = &rec
		}
	}
	return v
}

// Close detaches from the lifecycle controller and clears the session's selections.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.early = nil
	c.mu.Unlock()

	c.jobs.Close()
	if err := c.store.Teardown(ctx, c.sessionID); err != nil {
		return fmt.Errorf("teardown selection: %w", err)
	}
	c.log.Info("pipeline closed")
	return nil
}

func copyIndex(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
