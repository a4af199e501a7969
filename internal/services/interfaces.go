package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/lifecycle"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

// ===== SERVICE INTERFACES =====

type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, caller models.Caller) (*models.Quiz, error)
	Get(ctx context.Context, id uint, caller models.Caller) (*models.Quiz, error)
	List(ctx context.Context, filters repositories.QuizFilters, caller models.Caller) (*QuizListResponse, error)
	UpdateSchedule(ctx context.Context, id uint, req *UpdateScheduleRequest, caller models.Caller) (*models.Quiz, error)
	UpdateQuestions(ctx context.Context, id uint, req *UpdateQuestionsRequest, caller models.Caller) (*models.Quiz, error)
	SetPublished(ctx context.Context, id uint, published bool, caller models.Caller) (*models.Quiz, error)
	Delete(ctx context.Context, id uint, caller models.Caller) error
	Availability(ctx context.Context, id uint) (*lifecycle.Availability, error)
}

type AttemptService interface {
	Start(ctx context.Context, quizID uint, caller models.Caller) (*models.Attempt, error)
	Get(ctx context.Context, id uint, caller models.Caller) (*models.Attempt, error)
	ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, caller models.Caller) ([]*models.Attempt, error)
	RecordAnswer(ctx context.Context, attemptID uint, questionID string, payload json.RawMessage, caller models.Caller) (*models.Attempt, error)
	Submit(ctx context.Context, attemptID uint, caller models.Caller) (*models.Attempt, error)
	Abandon(ctx context.Context, attemptID uint, caller models.Caller) (*models.Attempt, error)
	Grade(ctx context.Context, attemptID uint, req *GradeAttemptRequest, caller models.Caller) (*models.Attempt, error)

	// CloseQuiz forces every in-progress attempt of the quiz through a
	// window-close timeout and returns how many were closed.
	CloseQuiz(ctx context.Context, quizID uint) (int, error)
}

type AnalyticsService interface {
	Recompute(ctx context.Context, quizID uint) (*models.QuizAnalytics, error)
	Get(ctx context.Context, quizID uint, caller models.Caller) (*models.QuizAnalytics, error)
	ExportResults(ctx context.Context, quizID uint, caller models.Caller) ([]byte, error)
}

// ScheduleArmer keeps the availability timers of a quiz in step with its
// stored schedule. The scheduler implements it.
type ScheduleArmer interface {
	Arm(ctx context.Context, quiz *models.Quiz) error
	Cancel(ctx context.Context, quizID uint) error
}

// ===== REQUEST / RESPONSE TYPES =====

type CreateQuizRequest struct {
	CourseID          string            `json:"course_id" validate:"required,max=64"`
	BranchID          string            `json:"branch_id" validate:"max=64"`
	Title             string            `json:"title" validate:"required,min=1,max=200"`
	Description       string            `json:"description" validate:"max=5000"`
	Questions         []models.Question `json:"questions" validate:"dive"`
	TimeLimit         int               `json:"time_limit" validate:"gte=0,lte=1440"`
	MaxAttempts       int               `json:"attempts" validate:"gte=0,lte=100"`
	PassingScore      float64           `json:"passing_score" validate:"gte=0,lte=100"`
	AvailableFrom     *time.Time        `json:"available_from"`
	AvailableUntil    *time.Time        `json:"available_until"`
	DueDate           *time.Time        `json:"due_date"`
	IsPublished       bool              `json:"is_published"`
	ShortAnswerManual bool              `json:"short_answer_manual"`
}

// UpdateScheduleRequest changes only the fields it carries. The Clear flags
// remove a bound entirely.
type UpdateScheduleRequest struct {
	AvailableFrom       *time.Time `json:"available_from"`
	AvailableUntil      *time.Time `json:"available_until"`
	DueDate             *time.Time `json:"due_date"`
	ClearAvailableFrom  bool       `json:"clear_available_from"`
	ClearAvailableUntil bool       `json:"clear_available_until"`
	ClearDueDate        bool       `json:"clear_due_date"`
}

// UpdateQuestionsRequest replaces the definition of a quiz. Questions, time
// limit, passing score and grading policy are frozen once the quiz has
// attempts.
type UpdateQuestionsRequest struct {
	Title             *string           `json:"title" validate:"omitempty,min=1,max=200"`
	Description       *string           `json:"description" validate:"omitempty,max=5000"`
	Questions         []models.Question `json:"questions" validate:"omitempty,dive"`
	TimeLimit         *int              `json:"time_limit" validate:"omitempty,gte=0,lte=1440"`
	MaxAttempts       *int              `json:"attempts" validate:"omitempty,gte=0,lte=100"`
	PassingScore      *float64          `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	ShortAnswerManual *bool             `json:"short_answer_manual"`
}

func (r *UpdateQuestionsRequest) touchesLockedFields() bool {
	return r.Questions != nil || r.TimeLimit != nil || r.PassingScore != nil || r.ShortAnswerManual != nil
}

type GradeRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=5000"`
}

type GradeAttemptRequest struct {
	Grades map[string]GradeRequest `json:"grades" validate:"required,min=1,dive"`
}

type QuizListResponse struct {
	Quizzes []*models.Quiz `json:"quizzes"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Quiz() QuizService
	Attempt() AttemptService
	Analytics() AnalyticsService
}
