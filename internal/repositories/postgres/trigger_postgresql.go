package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TriggerPostgreSQL struct {
	db *gorm.DB
}

func NewTriggerPostgreSQL(db *gorm.DB) repositories.TriggerRepository {
	return &TriggerPostgreSQL{db: db}
}

func (t *TriggerPostgreSQL) Upsert(ctx context.Context, trigger *models.ScheduleTrigger) error {
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "quiz_id"}, {Name: "edge"}},
			DoUpdates: clause.AssignmentColumns([]string{"fire_at", "status", "fire_count", "last_error", "fired_at", "updated_at"}),
		}).
		Create(trigger).Error
}

func (t *TriggerPostgreSQL) Get(ctx context.Context, quizID uint, edge models.ScheduleEdge) (*models.ScheduleTrigger, error) {
	var trigger models.ScheduleTrigger
	if err := t.db.WithContext(ctx).
		Where("quiz_id = ? AND edge = ?", quizID, edge).
		First(&trigger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &trigger, nil
}

func (t *TriggerPostgreSQL) DeleteByQuiz(ctx context.Context, quizID uint) error {
	return t.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Delete(&models.ScheduleTrigger{}).Error
}

func (t *TriggerPostgreSQL) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduleTrigger, error) {
	var triggers []*models.ScheduleTrigger
	if err := t.db.WithContext(ctx).
		Where("status <> ? AND fire_at <= ?", models.TriggerFired, now).
		Order("fire_at ASC").
		Find(&triggers).Error; err != nil {
		return nil, err
	}
	return triggers, nil
}

// Claim flips a due trigger to fired in one conditional UPDATE; only one
// caller sees RowsAffected == 1.
func (t *TriggerPostgreSQL) Claim(ctx context.Context, quizID uint, edge models.ScheduleEdge, now time.Time) (*models.ScheduleTrigger, bool, error) {
	result := t.db.WithContext(ctx).
		Model(&models.ScheduleTrigger{}).
		Where("quiz_id = ? AND edge = ? AND status <> ? AND fire_at <= ?", quizID, edge, models.TriggerFired, now).
		Updates(map[string]interface{}{
			"status":     models.TriggerFired,
			"fire_count": gorm.Expr("fire_count + 1"),
			"fired_at":   now,
			"last_error": "",
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	trigger, err := t.Get(ctx, quizID, edge)
	if err != nil {
		return nil, false, err
	}
	return trigger, true, nil
}

func (t *TriggerPostgreSQL) MarkRetry(ctx context.Context, quizID uint, edge models.ScheduleEdge, reason string) error {
	return t.db.WithContext(ctx).
		Model(&models.ScheduleTrigger{}).
		Where("quiz_id = ? AND edge = ?", quizID, edge).
		Updates(map[string]interface{}{
			"status":     models.TriggerRetry,
			"last_error": reason,
		}).Error
}
