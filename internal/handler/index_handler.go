package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semindex/internal/pkg/response"
)

type IndexHandler struct {
	semantic Semantic
}

func NewIndexHandler(semantic Semantic) *IndexHandler {
	return &IndexHandler{semantic: semantic}
}

func (h *IndexHandler) Pause(c *gin.Context) {
	h.semantic.SetIndexing(c.Request.Context(), false)
	response.Success(c, h.semantic.Status())
}

func (h *IndexHandler) Resume(c *gin.Context) {
	h.semantic.SetIndexing(c.Request.Context(), true)
	response.Success(c, h.semantic.Status())
}

func (h *IndexHandler) Status(c *gin.Context) {
	response.Success(c, h.semantic.Status())
}

func (h *IndexHandler) Backfill(c *gin.Context) {
	added, err := h.semantic.Backfill(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queued": added})
}
