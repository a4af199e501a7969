package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"gorm.io/gorm"
)

type QuizPostgreSQL struct {
	db *gorm.DB
}

func NewQuizPostgreSQL(db *gorm.DB) repositories.QuizRepository {
	return &QuizPostgreSQL{db: db}
}

func (q *QuizPostgreSQL) Create(ctx context.Context, quiz *models.Quiz) error {
	quiz.Version = 1
	return q.db.WithContext(ctx).Create(quiz).Error
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := q.db.WithContext(ctx).First(&quiz, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) Update(ctx context.Context, quiz *models.Quiz) error {
	quiz.Version++
	result := q.db.WithContext(ctx).Save(quiz)
	if result.Error != nil {
		quiz.Version--
		return result.Error
	}
	return nil
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := q.db.WithContext(ctx).Delete(&models.Quiz{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (q *QuizPostgreSQL) List(ctx context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	var quizzes []*models.Quiz
	var total int64

	// apply filter first
	query := q.db.WithContext(ctx).Model(&models.Quiz{})
	if filters.CourseID != "" {
		query = query.Where("course_id = ?", filters.CourseID)
	}
	if filters.CreatedBy != "" {
		query = query.Where("created_by = ?", filters.CreatedBy)
	}
	if filters.IsPublished != nil {
		query = query.Where("is_published = ?", *filters.IsPublished)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("id ASC").Find(&quizzes).Error; err != nil {
		return nil, 0, err
	}
	return quizzes, total, nil
}

func (q *QuizPostgreSQL) ListSchedulable(ctx context.Context, now time.Time) ([]*models.Quiz, error) {
	var quizzes []*models.Quiz
	if err := q.db.WithContext(ctx).
		Where("is_published = ?", true).
		Where("available_until IS NULL OR available_until > ?", now).
		Where("available_from IS NOT NULL OR available_until IS NOT NULL").
		Order("id ASC").
		Find(&quizzes).Error; err != nil {
		return nil, err
	}
	return quizzes, nil
}
