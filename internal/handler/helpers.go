package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/audit"
	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/internal/service"
	"github.com/clinchat/backend/pkg/model"
)

// ErrorResponse is the error payload returned by every endpoint
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// actorKey is the gin context key the identity middleware stores the acting
// user under
const actorKey = "actor"

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// actingUser pulls the authenticated user the identity middleware resolved.
// Aborts with 401 when no user is present.
func actingUser(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(actorKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "Authentication required",
		})
		return nil, false
	}
	user, ok := value.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "Authentication required",
		})
		return nil, false
	}
	return user, true
}

// recordAudit writes an audit trail entry for a mutating operation. Best
// effort: a nil recorder is skipped and storage failures are logged inside
// the audit logger, never surfaced to the client.
func recordAudit(c *gin.Context, rec *audit.Logger, actor *model.User, op audit.OperationType, resource audit.ResourceType, resourceID string) {
	if rec == nil {
		return
	}
	_ = rec.Log(c.Request.Context(), audit.AuditLog{
		UserID:        actor.ID,
		OperationType: op,
		ResourceType:  resource,
		ResourceID:    resourceID,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
}

// respondServiceError maps service and repository errors to HTTP responses
func respondServiceError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Resource not found",
			Details: stringPtr(err.Error()),
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "FORBIDDEN",
			Message: "You do not have access to this resource",
		})
	case errors.Is(err, service.ErrWindowClosed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "WINDOW_CLOSED",
			Message: "The chat window is not currently active",
		})
	case errors.Is(err, service.ErrOutsideTimeWindow):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "OUTSIDE_TIME_WINDOW",
			Message: "Messaging is not allowed at this time of day",
		})
	case errors.Is(err, service.ErrDailyLimitReached):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Code:    "DAILY_LIMIT_REACHED",
			Message: "The daily message limit has been reached",
		})
	case errors.Is(err, service.ErrMessageLimitReached):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Code:    "MESSAGE_LIMIT_REACHED",
			Message: "The message limit for this chat has been reached",
		})
	case errors.Is(err, service.ErrModelNotAllowed):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "MODEL_NOT_ALLOWED",
			Message: "Your provider does not allow this model",
		})
	case errors.Is(err, service.ErrReportExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "REPORT_EXISTS",
			Message: "A report already exists for this window",
		})
	case errors.Is(err, service.ErrWindowNotEnded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "WINDOW_NOT_ENDED",
			Message: "The window has not ended yet",
		})
	case errors.Is(err, service.ErrNoModelAvailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "NO_MODEL_AVAILABLE",
			Message: "No model is currently available",
		})
	default:
		// the cause goes to the log, never to the client
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		})
	}
}

// respondValidationError reports a malformed or invalid request body
func respondValidationError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Error("invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "Invalid request body",
		Details: stringPtr(err.Error()),
	})
}
