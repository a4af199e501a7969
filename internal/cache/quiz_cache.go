package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

const quizKeyPrefix = "quiz:definition:"

// CachedQuizRepository is a read-through cache in front of a quiz store.
// Cache failures are logged and fall back to the store.
type CachedQuizRepository struct {
	repositories.QuizRepository
	cache  CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedQuizRepository(store repositories.QuizRepository, cache CacheService, ttl time.Duration, logger *slog.Logger) *CachedQuizRepository {
	return &CachedQuizRepository{
		QuizRepository: store,
		cache:          cache,
		ttl:            ttl,
		logger:         logger,
	}
}

func quizKey(id uint) string {
	return fmt.Sprintf("%s%d", quizKeyPrefix, id)
}

func (c *CachedQuizRepository) GetByID(ctx context.Context, id uint) (*models.Quiz, error) {
	var cached models.Quiz
	err := c.cache.Get(ctx, quizKey(id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("Quiz cache read failed", "quiz_id", id, "error", err)
	}

	quiz, err := c.QuizRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, quizKey(id), quiz, c.ttl); err != nil {
		c.logger.Warn("Quiz cache write failed", "quiz_id", id, "error", err)
	}
	return quiz, nil
}

func (c *CachedQuizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	if err := c.QuizRepository.Update(ctx, quiz); err != nil {
		return err
	}
	c.invalidate(ctx, quiz.ID)
	return nil
}

func (c *CachedQuizRepository) Delete(ctx context.Context, id uint) error {
	if err := c.QuizRepository.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Flush drops every cached quiz definition.
func (c *CachedQuizRepository) Flush(ctx context.Context) error {
	return c.cache.DeletePattern(ctx, quizKeyPrefix+"*")
}

func (c *CachedQuizRepository) invalidate(ctx context.Context, id uint) {
	if err := c.cache.Delete(ctx, quizKey(id)); err != nil {
		c.logger.Warn("Quiz cache invalidation failed", "quiz_id", id, "error", err)
	}
}
