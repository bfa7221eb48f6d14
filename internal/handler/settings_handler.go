package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semindex/internal/pkg/errcode"
	"github.com/xxxsen/semindex/internal/pkg/response"
)

type SettingsHandler struct {
	semantic Semantic
}

func NewSettingsHandler(semantic Semantic) *SettingsHandler {
	return &SettingsHandler{semantic: semantic}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	response.Success(c, h.semantic.Settings())
}

type settingsRequest struct {
	SemanticSearchEnabled *bool `json:"semantic_search_enabled"`
	EncoderEnabled        *bool `json:"encoder_enabled"`
}

// Update applies a partial settings change. Omitted fields keep their value.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	next := h.semantic.Settings()
	if req.SemanticSearchEnabled != nil {
		next.SemanticSearchEnabled = *req.SemanticSearchEnabled
	}
	if req.EncoderEnabled != nil {
		next.EncoderEnabled = *req.EncoderEnabled
	}
	h.semantic.UpdateSettings(c.Request.Context(), next)
	response.Success(c, next)
}
