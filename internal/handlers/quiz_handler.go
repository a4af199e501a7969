package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

type QuizHandler struct {
	BaseHandler
	quizService services.QuizService
}

func NewQuizHandler(quizService services.QuizService, logger utils.Logger) *QuizHandler {
	return &QuizHandler{
		BaseHandler: NewBaseHandler(logger),
		quizService: quizService,
	}
}

// CreateQuiz creates a new quiz
// @Summary Create quiz
// @Tags quizzes
// @Accept json
// @Produce json
// @Param quiz body services.CreateQuizRequest true "Quiz data"
// @Success 201 {object} models.Quiz
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /quizzes [post]
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	var req services.CreateQuizRequest
	if !h.bindJSON(c, &req) {
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Quiz created", "quiz_id", quiz.ID)
	c.JSON(http.StatusCreated, quiz)
}

// ListQuizzes lists the quizzes visible to the caller
// @Summary List quizzes
// @Tags quizzes
// @Produce json
// @Param course_id query string false "Course filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.QuizListResponse
// @Router /quizzes [get]
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	filters := repositories.QuizFilters{
		CourseID: c.Query("course_id"),
		Limit:    h.parseIntQuery(c, "limit", 20),
		Offset:   h.parseIntQuery(c, "offset", 0),
	}
	if published := c.Query("is_published"); published != "" {
		if value, err := strconv.ParseBool(published); err == nil {
			filters.IsPublished = &value
		}
	}

	list, err := h.quizService.List(c.Request.Context(), filters, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetQuiz retrieves a quiz. Students receive it without the answer key.
// @Summary Get quiz
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} models.Quiz
// @Failure 404 {object} ErrorResponse
// @Router /quizzes/{id} [get]
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Getting quiz", "quiz_id", id)

	quiz, err := h.quizService.Get(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// UpdateSchedule changes the availability window of a quiz
// @Summary Update quiz schedule
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param schedule body services.UpdateScheduleRequest true "Schedule"
// @Success 200 {object} models.Quiz
// @Failure 422 {object} ErrorResponse
// @Router /quizzes/{id}/schedule [put]
func (h *QuizHandler) UpdateSchedule(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	var req services.UpdateScheduleRequest
	if !h.bindJSON(c, &req) {
		return
	}

	quiz, err := h.quizService.UpdateSchedule(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Quiz schedule updated", "quiz_id", id)
	c.JSON(http.StatusOK, quiz)
}

// UpdateQuestions replaces the definition of a quiz
// @Summary Update quiz questions
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param definition body services.UpdateQuestionsRequest true "Definition"
// @Success 200 {object} models.Quiz
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id}/questions [put]
func (h *QuizHandler) UpdateQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	var req services.UpdateQuestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	quiz, err := h.quizService.UpdateQuestions(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Quiz definition updated", "quiz_id", id)
	c.JSON(http.StatusOK, quiz)
}

// PublishQuiz makes a quiz visible to students
// @Summary Publish quiz
// @Tags quizzes
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse{data=models.Quiz}
// @Router /quizzes/{id}/publish [post]
func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	h.setPublished(c, true)
}

// UnpublishQuiz hides a quiz from students
// @Summary Unpublish quiz
// @Tags quizzes
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse{data=models.Quiz}
// @Router /quizzes/{id}/unpublish [post]
func (h *QuizHandler) UnpublishQuiz(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *QuizHandler) setPublished(c *gin.Context, published bool) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.SetPublished(c.Request.Context(), id, published, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	message := "Quiz unpublished successfully"
	if published {
		message = "Quiz published successfully"
	}
	h.RespondWithSuccess(c, http.StatusOK, message, quiz, "quiz_id", id)
}

// DeleteQuiz deletes a quiz without attempts
// @Summary Delete quiz
// @Tags quizzes
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id} [delete]
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), id, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.RespondWithSuccess(c, http.StatusOK, "Quiz deleted successfully", nil, "quiz_id", id)
}

// GetAvailability explains whether a quiz can be started right now
// @Summary Get quiz availability
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} lifecycle.Availability
// @Router /quizzes/{id}/availability [get]
func (h *QuizHandler) GetAvailability(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	availability, err := h.quizService.Availability(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
