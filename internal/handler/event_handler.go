package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semindex/internal/pkg/errcode"
	"github.com/xxxsen/semindex/internal/pkg/response"
)

// EventHandler turns platform notifications into lifecycle events.
type EventHandler struct {
	semantic Semantic
}

func NewEventHandler(semantic Semantic) *EventHandler {
	return &EventHandler{semantic: semantic}
}

type uploadedRequest struct {
	ItemID int64 `json:"item_id"`
}

func (h *EventHandler) Uploaded(c *gin.Context) {
	var req uploadedRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ItemID <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.semantic.NotifyUploaded(c.Request.Context(), req.ItemID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"item_id": req.ItemID})
}

func (h *EventHandler) Sync(c *gin.Context) {
	h.semantic.NotifySync(c.Request.Context())
	response.Success(c, gin.H{})
}
