package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-tables/api/middleware"
	"github.com/feichai0017/document-tables/internal/apperr"
	"github.com/feichai0017/document-tables/internal/models"
	"github.com/feichai0017/document-tables/pkg/logger"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindUnauthorized:      http.StatusUnauthorized,
	apperr.KindInvalidInput:      http.StatusBadRequest,
	apperr.KindExtractionFailure: http.StatusUnprocessableEntity,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindStorageFailure:    http.StatusInternalServerError,
}

// handleError maps a service failure onto a status and a caller-safe body.
func handleError(c *gin.Context, log logger.Logger, err error) {
	l := logger.FromContext(c.Request.Context(), log)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		l.Error("Unclassified failure", logger.String("path", c.Request.URL.Path), logger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}

	status, ok := kindStatus[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := appErr.Message
	switch appErr.Kind {
	case apperr.KindStorageFailure:
		l.Error("Storage failure", logger.String("path", c.Request.URL.Path), logger.Error(err))
		message = "internal server error"
	case apperr.KindExtractionFailure:
		l.Warn("Extraction failure", logger.String("path", c.Request.URL.Path), logger.Error(err))
		message = "document could not be processed"
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Error: string(appErr.Kind), Message: message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: string(apperr.KindInvalidInput), Message: message})
}

// identity returns the authenticated caller or writes a 401.
func identity(c *gin.Context) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: string(apperr.KindUnauthorized), Message: "authentication required"})
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func optionalInt64(c *gin.Context, raw, name string) (*int64, bool) {
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, name+" must be an integer")
		return nil, false
	}
	return &v, true
}

func optionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
