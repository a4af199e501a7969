package postgres

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnalyticsPostgreSQL struct {
	db *gorm.DB
}

func NewAnalyticsPostgreSQL(db *gorm.DB) repositories.AnalyticsRepository {
	return &AnalyticsPostgreSQL{db: db}
}

func (a *AnalyticsPostgreSQL) Upsert(ctx context.Context, analytics *models.QuizAnalytics) error {
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quiz_id"}},
			UpdateAll: true,
		}).
		Create(analytics).Error
}

func (a *AnalyticsPostgreSQL) Get(ctx context.Context, quizID uint) (*models.QuizAnalytics, error) {
	var analytics models.QuizAnalytics
	if err := a.db.WithContext(ctx).First(&analytics, "quiz_id = ?", quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &analytics, nil
}

func (a *AnalyticsPostgreSQL) Delete(ctx context.Context, quizID uint) error {
	return a.db.WithContext(ctx).Delete(&models.QuizAnalytics{}, "quiz_id = ?", quizID).Error
}
