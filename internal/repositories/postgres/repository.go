package postgres

import (
	"fmt"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	quiz      repositories.QuizRepository
	attempt   repositories.AttemptRepository
	trigger   repositories.TriggerRepository
	analytics repositories.AnalyticsRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		quiz:      NewQuizPostgreSQL(db),
		attempt:   NewAttemptPostgreSQL(db),
		trigger:   NewTriggerPostgreSQL(db),
		analytics: NewAnalyticsPostgreSQL(db),
	}
}

func (r *Repository) Quiz() repositories.QuizRepository           { return r.quiz }
func (r *Repository) Attempt() repositories.AttemptRepository     { return r.attempt }
func (r *Repository) Trigger() repositories.TriggerRepository     { return r.trigger }
func (r *Repository) Analytics() repositories.AnalyticsRepository { return r.analytics }

// WithQuizRepository swaps the quiz store, e.g. for a caching decorator.
func (r *Repository) WithQuizRepository(quiz repositories.QuizRepository) *Repository {
	r.quiz = quiz
	return r
}

// AutoMigrate creates or updates the engine's tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Quiz{},
		&models.Attempt{},
		&models.ScheduleTrigger{},
		&models.QuizAnalytics{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
