package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AnalyticsHandler struct {
	BaseHandler
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService, logger utils.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		BaseHandler:      NewBaseHandler(logger),
		analyticsService: analyticsService,
	}
}

// GetAnalytics returns the aggregated results of a quiz
// @Summary Get quiz analytics
// @Tags analytics
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} models.QuizAnalytics
// @Failure 403 {object} ErrorResponse
// @Router /quizzes/{id}/analytics [get]
func (h *AnalyticsHandler) GetAnalytics(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	analytics, err := h.analyticsService.Get(c.Request.Context(), quizID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// ExportResults downloads the quiz gradebook as an Excel workbook
// @Summary Export quiz results
// @Tags analytics
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Quiz ID"
// @Success 200 {file} file
// @Failure 403 {object} ErrorResponse
// @Router /quizzes/{id}/results.xlsx [get]
func (h *AnalyticsHandler) ExportResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	caller, ok := h.requireCaller(c)
	if !ok {
		return
	}

	data, err := h.analyticsService.ExportResults(c.Request.Context(), quizID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=quiz-%d-results.xlsx", quizID))
	c.Data(http.StatusOK, xlsxContentType, data)
}
