package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleWrite means a conditional write lost against a concurrent one.
	ErrStaleWrite = errors.New("record was modified concurrently")
)

// ===== SHARED FILTER STRUCTS =====

type QuizFilters struct {
	CourseID    string `json:"course_id"`
	CreatedBy   string `json:"created_by"`
	IsPublished *bool  `json:"is_published"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

type AttemptFilters struct {
	Status    models.AttemptStatus `json:"status"`
	StudentID string               `json:"student_id"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// ===== REPOSITORIES =====

// QuizRepository stores quiz definitions.
type QuizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uint) (*models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters QuizFilters) ([]*models.Quiz, int64, error)

	// ListSchedulable returns published quizzes whose window has not ended at now.
	ListSchedulable(ctx context.Context, now time.Time) ([]*models.Quiz, error)
}

// AttemptRepository stores attempts. UpdateIfVersion is the conditional
// write every state transition goes through.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (*models.Attempt, error)

	// UpdateIfVersion writes attempt only if the stored version still equals
	// expectedVersion, bumping the version. It returns ErrStaleWrite otherwise.
	UpdateIfVersion(ctx context.Context, attempt *models.Attempt, expectedVersion int) error

	// GetActiveAttempt returns nil, nil when the student has no open attempt.
	GetActiveAttempt(ctx context.Context, quizID uint, studentID string) (*models.Attempt, error)
	ListByQuiz(ctx context.Context, quizID uint, filters AttemptFilters) ([]*models.Attempt, error)
	CountByQuiz(ctx context.Context, quizID uint) (int64, error)

	// CountSubmitted counts the student's attempts with a submission time.
	CountSubmitted(ctx context.Context, quizID uint, studentID string) (int, error)
}

// TriggerRepository persists the next fire instant of each quiz edge.
type TriggerRepository interface {
	Upsert(ctx context.Context, trigger *models.ScheduleTrigger) error
	Get(ctx context.Context, quizID uint, edge models.ScheduleEdge) (*models.ScheduleTrigger, error)
	DeleteByQuiz(ctx context.Context, quizID uint) error
	ListDue(ctx context.Context, now time.Time) ([]*models.ScheduleTrigger, error)

	// Claim marks a due trigger as fired. It returns false if another caller
	// already claimed it or the trigger is not due.
	Claim(ctx context.Context, quizID uint, edge models.ScheduleEdge, now time.Time) (*models.ScheduleTrigger, bool, error)
	MarkRetry(ctx context.Context, quizID uint, edge models.ScheduleEdge, reason string) error
}

type AnalyticsRepository interface {
	Upsert(ctx context.Context, analytics *models.QuizAnalytics) error
	Get(ctx context.Context, quizID uint) (*models.QuizAnalytics, error)
	Delete(ctx context.Context, quizID uint) error
}

// Repository groups the stores one backend provides.
type Repository interface {
	Quiz() QuizRepository
	Attempt() AttemptRepository
	Trigger() TriggerRepository
	Analytics() AnalyticsRepository
}
