package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/semindex/internal/model"
	"github.com/xxxsen/semindex/internal/pkg/response"
)

type SearchHandler struct {
	semantic Semantic
}

func NewSearchHandler(semantic Semantic) *SearchHandler {
	return &SearchHandler{semantic: semantic}
}

type searchResponse struct {
	Query string       `json:"query"`
	Items []model.Item `json:"items"`
}

// Search answers with the query that produced the items, which is the most
// recent one when several requests overlap.
func (h *SearchHandler) Search(c *gin.Context) {
	q, ok := queryParam(c)
	if !ok {
		return
	}
	query, items, err := h.semantic.Search(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	response.Success(c, searchResponse{Query: query, Items: items})
}

func (h *SearchHandler) MatchingIDs(c *gin.Context) {
	q, ok := queryParam(c)
	if !ok {
		return
	}
	ids, err := h.semantic.GetMatchingFileIDs(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	response.Success(c, gin.H{"ids": ids})
}
