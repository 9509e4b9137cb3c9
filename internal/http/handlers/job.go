package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/http/response"
	"github.com/yungbote/loresmith/internal/jobs/cache"
	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/platform/ctxutil"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/realtime"
)

type JobHandlerDeps struct {
	Log     *logger.Logger
	Backend lifecycle.Backend

	// Tracking configures the throwaway controllers behind raw submissions. Its Cache
	// must be the one Jobs reads from.
	Tracking lifecycle.Options
	Jobs     cache.Reader
	Hub      *realtime.SSEHub

	// Shared means snapshots of jobs owned by other replicas reach Hub through a bus,
	// so a stream may be opened for a job this process has never seen.
	Shared bool
}

type JobHandler struct {
	log      *logger.Logger
	backend  lifecycle.Backend
	tracking lifecycle.Options
	jobs     cache.Reader
	hub      *realtime.SSEHub
	shared   bool
}

func NewJobHandlerWithDeps(deps JobHandlerDeps) *JobHandler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &JobHandler{
		log:      log.With("handler", "JobHandler"),
		backend:  deps.Backend,
		tracking: deps.Tracking,
		jobs:     deps.Jobs,
		hub:      deps.Hub,
		shared:   deps.Shared,
	}
}

type submitJobRequest struct {
	Type    domain.TaskKind `json:"type"`
	Payload map[string]any  `json:"payload"`
	UserID  int64           `json:"user_id,omitempty"`
}

// POST /api/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	if req.UserID > 0 {
		ctxutil.GetRequestData(ctx).SetUser(req.UserID)
		ctx = client.WithUserID(ctx, req.UserID)
	}
	rec, err := lifecycle.SubmitDetached(ctx, h.backend, h.tracking, domain.JobRequest{Type: req.Type, Payload: req.Payload})
	if err != nil {
		_ = c.Error(err)
		response.RespondAPIError(c, classify(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": rec})
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	rec, ok := h.jobs.Get(id)
	if !ok {
		response.RespondError(c, http.StatusNotFound, "job_not_found", errOrMissing(nil, "job is not tracked: "+id))
		return
	}
	response.RespondOK(c, gin.H{"job": rec})
}

// GET /api/jobs/:id/stream
func (h *JobHandler) Stream(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	rec, known := h.jobs.Get(id)
	if !known && !h.shared {
		response.RespondError(c, http.StatusNotFound, "job_not_found", errOrMissing(nil, "job is not tracked: "+id))
		return
	}

	sub := h.hub.NewSSEClient()
	h.hub.AddChannel(sub, realtime.JobChannel(id))
	defer h.hub.CloseClient(sub)

	// Replay the latest snapshot so late subscribers start from current state. Anything
	// broadcast before this read is no newer than the replay.
	if rec, known = h.jobs.Get(id); known {
		event := realtime.SSEEventJobUpdated
		if rec.Status.Terminal() {
			event = realtime.SSEEventJobDone
		}
		select {
		case sub.Outbound <- realtime.SSEMessage{Channel: realtime.JobChannel(id), Event: event, Data: rec}:
		default:
		}
	}
	h.log.Debug("job stream open", "job_id", id, "client_id", sub.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, sub)
}
