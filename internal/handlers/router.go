package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-engine/internal/services"
	"github.com/SAP-F-2025/quiz-engine/internal/utils"
)

type HandlerManager struct {
	quizHandler      *QuizHandler
	attemptHandler   *AttemptHandler
	gradingHandler   *GradingHandler
	analyticsHandler *AnalyticsHandler
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		quizHandler:      NewQuizHandler(serviceManager.Quiz(), logger),
		attemptHandler:   NewAttemptHandler(serviceManager.Attempt(), logger),
		gradingHandler:   NewGradingHandler(serviceManager.Attempt(), logger),
		analyticsHandler: NewAnalyticsHandler(serviceManager.Analytics(), logger),
	}
}

// SetupRoutes sets up all API routes. Everything under /api/v1 goes through
// auth.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1", auth)
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", hm.quizHandler.CreateQuiz)
			quizzes.GET("", hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", hm.quizHandler.GetQuiz)
			quizzes.DELETE("/:id", hm.quizHandler.DeleteQuiz)
			quizzes.PUT("/:id/schedule", hm.quizHandler.UpdateSchedule)
			quizzes.PUT("/:id/questions", hm.quizHandler.UpdateQuestions)
			quizzes.POST("/:id/publish", hm.quizHandler.PublishQuiz)
			quizzes.POST("/:id/unpublish", hm.quizHandler.UnpublishQuiz)
			quizzes.GET("/:id/availability", hm.quizHandler.GetAvailability)

			quizzes.POST("/:id/attempts", hm.attemptHandler.StartAttempt)
			quizzes.GET("/:id/attempts", hm.attemptHandler.ListAttempts)

			quizzes.GET("/:id/analytics", hm.analyticsHandler.GetAnalytics)
			quizzes.GET("/:id/results.xlsx", hm.analyticsHandler.ExportResults)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers/:question_id", hm.attemptHandler.RecordAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/abandon", hm.attemptHandler.AbandonAttempt)
		}

		grading := v1.Group("/grading")
		{
			grading.POST("/attempts/:attempt_id", hm.gradingHandler.GradeAttempt)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quiz-engine",
	})
}
