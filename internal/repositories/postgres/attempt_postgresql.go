package postgres

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	attempt.Version = 1
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// UpdateIfVersion issues UPDATE ... WHERE id = ? AND version = ?, so two
// writers racing on the same attempt cannot both succeed.
func (a *AttemptPostgreSQL) UpdateIfVersion(ctx context.Context, attempt *models.Attempt, expectedVersion int) error {
	attempt.Version = expectedVersion + 1
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND version = ?", attempt.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(attempt)
	if result.Error != nil {
		attempt.Version = expectedVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		attempt.Version = expectedVersion
		return repositories.ErrStaleWrite
	}
	return nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, quizID uint, studentID string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := a.db.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ? AND status = ?", quizID, studentID, models.AttemptInProgress).
		Order("started_at DESC").
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.Attempt, error) {
	var attempts []*models.Attempt

	query := a.db.WithContext(ctx).Where("quiz_id = ?", quizID)
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.StudentID != "" {
		query = query.Where("student_id = ?", filters.StudentID)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("id ASC").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) CountByQuiz(ctx context.Context, quizID uint) (int64, error) {
	var count int64
	if err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (a *AttemptPostgreSQL) CountSubmitted(ctx context.Context, quizID uint, studentID string) (int, error) {
	var count int64
	if err := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("quiz_id = ? AND student_id = ? AND submitted_at IS NOT NULL", quizID, studentID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
