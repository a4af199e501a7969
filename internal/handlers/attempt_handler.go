package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// RecordAnswerRequest wraps the raw answer payload. Its shape depends on the
// question type.
type RecordAnswerRequest struct {
	Answer json.RawMessage `json:"answer"`
}

// StartAttempt starts or resumes the caller's attempt on a quiz
// @Summary Start attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 201 {object} models.Attempt
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id}/attempts [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), quizID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Attempt started", "quiz_id", quizID, "attempt_id", attempt.ID)
	c.JSON(http.StatusCreated, attempt)
}

// ListAttempts lists attempts on a quiz. Students only see their own.
// @Summary List quiz attempts
// @Tags attempts
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param status query string false "Status filter"
// @Success 200 {array} models.Attempt
// @Router /quizzes/{id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	filters := repositories.AttemptFilters{
		Status:    models.AttemptStatus(c.Query("status")),
		StudentID: c.Query("student_id"),
		Limit:     h.parseIntQuery(c, "limit", 0),
		Offset:    h.parseIntQuery(c, "offset", 0),
	}

	attempts, err := h.attemptService.ListByQuiz(c.Request.Context(), quizID, filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetAttempt retrieves an attempt
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.Attempt
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// RecordAnswer saves the answer to one question of an attempt
// @Summary Record answer
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path string true "Question ID"
// @Param answer body RecordAnswerRequest true "Answer"
// @Success 200 {object} models.Attempt
// @Failure 409 {object} ErrorResponse{details=models.Attempt}
// @Router /attempts/{id}/answers/{question_id} [put]
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := strings.TrimSpace(c.Param("question_id"))
	if questionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid question_id",
			Details: "ID cannot be empty",
		})
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	var req RecordAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if len(req.Answer) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: "answer is required",
		})
		return
	}

	attempt, err := h.attemptService.RecordAnswer(c.Request.Context(), id, questionID, req.Answer, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt submits an attempt for scoring. Submitting twice returns
// the stored result.
// @Summary Submit attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.Attempt
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Attempt submitted", "attempt_id", id, "status", attempt.Status)
	c.JSON(http.StatusOK, attempt)
}

// AbandonAttempt gives up an attempt without scoring it
// @Summary Abandon attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} models.Attempt
// @Router /attempts/{id}/abandon [post]
func (h *AttemptHandler) AbandonAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Abandon(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}
