package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
	"github.com/kassaflow/kassaflow/internal/ingest"
	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
	storedomain "github.com/kassaflow/kassaflow/internal/store/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
	taxprofiledomain "github.com/kassaflow/kassaflow/internal/taxprofile/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, storedomain.ErrStoreNotFound),
		errors.Is(err, taskdomain.ErrTaskNotFound),
		errors.Is(err, eventdomain.ErrEventNotFound),
		errors.Is(err, receiptdomain.ErrReceiptNotFound),
		errors.Is(err, taxprofiledomain.ErrProfileNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ingest.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
