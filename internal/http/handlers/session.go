package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/http/response"
	"github.com/yungbote/loresmith/internal/pipeline"
	"github.com/yungbote/loresmith/internal/platform/ctxutil"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/session"
)

type SessionHandlerDeps struct {
	Log      *logger.Logger
	Sessions *session.Registry

	// OnSessionsChanged is told the live session count after create/delete.
	OnSessionsChanged func(n int)
}

type SessionHandler struct {
	log      *logger.Logger
	sessions *session.Registry
	changed  func(int)
}

func NewSessionHandlerWithDeps(deps SessionHandlerDeps) *SessionHandler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	changed := deps.OnSessionsChanged
	if changed == nil {
		changed = func(int) {}
	}
	return &SessionHandler{log: log.With("handler", "SessionHandler"), sessions: deps.Sessions, changed: changed}
}

type selectRequest struct {
	Index *int `json:"index"`
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"sessions": h.sessions.IDs()})
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req session.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.Theme = strings.TrimSpace(req.Theme)
	rd := ctxutil.GetRequestData(c.Request.Context())
	rd.SetUser(req.UserID)

	ctl, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, classify(err))
		return
	}
	rd.SetSession(ctl.SessionID())
	h.changed(h.sessions.Len())
	c.JSON(http.StatusCreated, gin.H{"session": ctl.View()})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	ctl, ok := h.lookup(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"session": ctl.View()})
}

// POST /api/sessions/:id/enter
func (h *SessionHandler) Enter(c *gin.Context) {
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.Enter(ctx) })
}

// POST /api/sessions/:id/select
func (h *SessionHandler) Select(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Index == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errOrMissing(err, "index is required"))
		return
	}
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.SelectCard(ctx, *req.Index) })
}

// POST /api/sessions/:id/regenerate
func (h *SessionHandler) Regenerate(c *gin.Context) {
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.Regenerate(ctx) })
}

// POST /api/sessions/:id/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.Advance(ctx) })
}

// POST /api/sessions/:id/retry
func (h *SessionHandler) Retry(c *gin.Context) {
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.Retry(ctx) })
}

// POST /api/sessions/:id/finalize/retry
func (h *SessionHandler) RetryFinalize(c *gin.Context) {
	h.act(c, func(ctx context.Context, ctl *pipeline.Controller) error { return ctl.RetryFinalize(ctx) })
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctxutil.GetRequestData(c.Request.Context()).SetSession(id)
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, classify(err))
		return
	}
	h.changed(h.sessions.Len())
	c.Status(http.StatusNoContent)
}

// act runs op against the session and answers with the resulting view. Job outcomes
// are part of the view, so only misuse and storage failures become HTTP errors.
func (h *SessionHandler) act(c *gin.Context, op func(context.Context, *pipeline.Controller) error) {
	ctl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), ctl); err != nil {
		_ = c.Error(err)
		response.RespondAPIError(c, classify(err))
		return
	}
	response.RespondOK(c, gin.H{"session": ctl.View()})
}

func (h *SessionHandler) lookup(c *gin.Context) (*pipeline.Controller, bool) {
	id := c.Param("id")
	ctxutil.GetRequestData(c.Request.Context()).SetSession(id)
	ctl, ok := h.sessions.Get(id)
	if !ok {
		response.RespondAPIError(c, classify(session.ErrNotFound))
		return nil, false
	}
	return ctl, true
}
