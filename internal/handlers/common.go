package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.requestFields(c),
		"remote_addr", c.ClientIP(),
		"user_agent", c.Request.UserAgent(),
	)
	h.log(c).Debug(message, append(fields, additionalFields...)...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	h.log(c).LogError(err, message, append(h.requestFields(c), additionalFields...)...)
}

// LogInfo logs informational messages with context
func (h *BaseHandler) LogInfo(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Info(message, append(h.requestFields(c), additionalFields...)...)
}

// LogWarn logs warning messages with context
func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	h.log(c).Warn(message, append(h.requestFields(c), additionalFields...)...)
}

// log prefers the request-scoped logger, which already carries request_id.
func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger.With("request_id", utils.RequestID(c)))
}

func (h *BaseHandler) requestFields(c *gin.Context) []interface{} {
	var userID interface{}
	if caller, ok := callerFromContext(c); ok {
		userID = caller.ID
	}
	return []interface{}{
		"user_id", userID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}
	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if err != nil && statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode, "error", err)
	}

	c.JSON(statusCode, errorResp)
}

// RespondWithSuccess sends a consistent success response and logs it
func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}, additionalFields ...interface{}) {
	fields := append([]interface{}{"status_code", statusCode}, additionalFields...)
	h.LogInfo(c, message, fields...)

	c.JSON(statusCode, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// ===== REQUEST HELPERS =====

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// requireCaller returns the authenticated caller or writes a 401.
func (h *BaseHandler) requireCaller(c *gin.Context) (models.Caller, bool) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return models.Caller{}, false
	}
	return caller, true
}

func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// ===== ERROR MAPPING =====

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var conflict *services.AttemptConflictError
	if errors.As(err, &conflict) {
		h.LogWarn(c, "Attempt conflict", "error", err)
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: conflict.Error(),
			Code:    errorCode(conflict.Err),
			Details: conflict.Attempt,
		})
		return
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Code:    "validation_failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Code:    businessRuleError.Rule,
			Details: businessRuleError.Context,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Code:    "forbidden",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSchedulingConflict), errors.Is(err, services.ErrQuizEmpty):
		status = http.StatusUnprocessableEntity
	case services.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	case services.IsUnauthorized(err):
		status = http.StatusForbidden
	case services.IsValidation(err):
		status = http.StatusBadRequest
	case services.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unexpected service error")
		c.JSON(status, ErrorResponse{
			Message: "Internal server error",
		})
		return
	}

	c.JSON(status, ErrorResponse{
		Message: err.Error(),
		Code:    errorCode(err),
	})
}

// errorCode gives clients a stable name for each service failure.
func errorCode(err error) string {
	codes := []struct {
		target error
		code   string
	}{
		{services.ErrQuizNotFound, "quiz_not_found"},
		{services.ErrAttemptNotFound, "attempt_not_found"},
		{services.ErrQuestionNotFound, "question_not_found"},
		{services.ErrQuizNotAvailable, "not_available"},
		{services.ErrAttemptLimitReached, "attempt_limit_reached"},
		{services.ErrAttemptAlreadySubmitted, "already_submitted"},
		{services.ErrAttemptNotGradable, "not_gradable"},
		{services.ErrAttemptContention, "contention"},
		{services.ErrQuizHasAttempts, "quiz_locked"},
		{services.ErrQuizEmpty, "quiz_empty"},
		{services.ErrSchedulingConflict, "scheduling_conflict"},
		{services.ErrNotEnrolled, "not_enrolled"},
		{services.ErrAttemptAccessDenied, "forbidden"},
		{services.ErrForbidden, "forbidden"},
		{services.ErrUnauthorized, "unauthorized"},
		{services.ErrValidationFailed, "validation_failed"},
	}
	for _, entry := range codes {
		if errors.Is(err, entry.target) {
			return entry.code
		}
	}
	return ""
}
