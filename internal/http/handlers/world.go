package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/http/response"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/worldimage"
)

type WorldHandlerDeps struct {
	Log    *logger.Logger
	Images *worldimage.Service
}

type WorldHandler struct {
	log    *logger.Logger
	images *worldimage.Service
}

func NewWorldHandlerWithDeps(deps WorldHandlerDeps) *WorldHandler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &WorldHandler{log: log.With("handler", "WorldHandler"), images: deps.Images}
}

// POST /api/worlds/:id/image
func (h *WorldHandler) GenerateImage(c *gin.Context) {
	worldID, ok := worldParam(c)
	if !ok {
		return
	}
	rec, err := h.images.Generate(c.Request.Context(), worldID)
	if err != nil {
		_ = c.Error(err)
		response.RespondAPIError(c, classify(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": rec})
}

// GET /api/worlds/:id/image
func (h *WorldHandler) ImageStatus(c *gin.Context) {
	worldID, ok := worldParam(c)
	if !ok {
		return
	}
	st, found := h.images.Status(worldID)
	if !found {
		response.RespondError(c, http.StatusNotFound, "world_image_not_requested", errOrMissing(nil, "no image requested for this world"))
		return
	}
	response.RespondOK(c, gin.H{"image": st})
}

func worldParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.RespondAPIError(c, classify(worldimage.ErrInvalidWorld))
		return 0, false
	}
	return id, true
}
