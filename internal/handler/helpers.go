package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/semindex/internal/pkg/errcode"
	"github.com/xxxsen/semindex/internal/pkg/response"
)

func queryParam(c *gin.Context) (string, bool) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return "", false
	}
	return q, true
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	response.FromError(c, err)
}
