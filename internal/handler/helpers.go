package handler

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/guard"
	"github.com/xxxsen/mtutor/internal/ingest"
	"github.com/xxxsen/mtutor/internal/middleware"
	"github.com/xxxsen/mtutor/internal/pkg/errcode"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
	"github.com/xxxsen/mtutor/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", middleware.UserID(c)),
		zap.Error(err),
	)
	var rejected *guard.RejectedError
	switch {
	case errors.As(err, &rejected):
		response.AbortWithStatus(c, http.StatusBadRequest, errcode.ErrInputRejected, rejected.Result.Reason, gin.H{"rule": rejected.Result.Rule})
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "assistant is temporarily unavailable, please retry later")
	case errors.Is(err, ingest.ErrQueueFull):
		response.Error(c, errcode.ErrIngestBusy, "ingestion queue is full")
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func trimKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func contentTypeOf(key string) string {
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
