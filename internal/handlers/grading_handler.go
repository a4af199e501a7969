package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

type GradingHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewGradingHandler(attemptService services.AttemptService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// GradeAttempt records manual grades for the flagged answers of an attempt
// @Summary Grade attempt
// @Description Grades answers awaiting manual grading, keyed by question id
// @Tags grading
// @Accept json
// @Produce json
// @Param attempt_id path uint true "Attempt ID"
// @Param grades body services.GradeAttemptRequest true "Grades"
// @Success 200 {object} models.Attempt
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /grading/attempts/{attempt_id} [post]
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "attempt_id")
	if attemptID == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	var req services.GradeAttemptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Grading attempt", "attempt_id", attemptID, "answers", len(req.Grades))

	attempt, err := h.attemptService.Grade(c.Request.Context(), attemptID, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Attempt graded", "attempt_id", attemptID, "status", attempt.Status)
	c.JSON(http.StatusOK, attempt)
}
