package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

type analyticsService struct {
	repo   repositories.Repository
	clock  clock.Clock
	logger *slog.Logger
}

func NewAnalyticsService(repo repositories.Repository, clk clock.Clock, logger *slog.Logger) AnalyticsService {
	return &analyticsService{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

// Recompute rebuilds the quiz aggregate from every stored attempt.
func (s *analyticsService) Recompute(ctx context.Context, quizID uint) (*models.QuizAnalytics, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	attempts, err := s.repo.Attempt().ListByQuiz(ctx, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	analytics := Aggregate(quiz, attempts)
	analytics.LastCalculatedAt = s.clock.Now()

	if err := s.repo.Analytics().Upsert(ctx, analytics); err != nil {
		return nil, fmt.Errorf("failed to save analytics: %w", err)
	}

	s.logger.Debug("Quiz analytics recomputed",
		"quiz_id", quizID,
		"attempts", analytics.AttemptCount,
		"pending_grading", analytics.PendingGradingCount)
	return analytics, nil
}

func (s *analyticsService) Get(ctx context.Context, quizID uint, caller models.Caller) (*models.QuizAnalytics, error) {
	if _, err := s.managedQuiz(ctx, quizID, caller, "view_analytics"); err != nil {
		return nil, err
	}

	analytics, err := s.repo.Analytics().Get(ctx, quizID)
	if err == nil {
		return analytics, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}
	return s.Recompute(ctx, quizID)
}

// managedQuiz loads a quiz the caller may report on: its creator or an admin.
func (s *analyticsService) managedQuiz(ctx context.Context, quizID uint, caller models.Caller, action string) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if !canManage(quiz, caller) {
		return nil, NewPermissionError(caller.ID, quizID, "quiz", action, "only the quiz creator or an admin")
	}
	return quiz, nil
}

// Aggregate computes quiz statistics from its attempts. Scores and times
// are averaged over attempts whose score is final; pass rate is taken over
// submitted attempts only.
func Aggregate(quiz *models.Quiz, attempts []*models.Attempt) *models.QuizAnalytics {
	analytics := &models.QuizAnalytics{QuizID: quiz.ID}

	var scoreSum float64
	var timeSum, finalCount, submittedCount int
	lowest := math.Inf(1)

	for _, attempt := range attempts {
		analytics.AttemptCount++

		switch attempt.Status {
		case models.AttemptInProgress:
			analytics.InProgressCount++
		case models.AttemptAbandoned:
			analytics.AbandonedCount++
		}
		if attempt.SubmittedAt != nil {
			analytics.CompletionCount++
			if attempt.PendingManualGrades() > 0 {
				analytics.PendingGradingCount++
			}
		}

		if !hasFinalScore(attempt) {
			continue
		}
		finalCount++
		analytics.GradedCount++
		scoreSum += attempt.PercentageScore
		timeSum += attempt.TimeSpent
		analytics.HighestScore = math.Max(analytics.HighestScore, attempt.PercentageScore)
		lowest = math.Min(lowest, attempt.PercentageScore)

		if attempt.Status == models.AttemptSubmitted {
			submittedCount++
			if attempt.PercentageScore >= quiz.PassingScore {
				analytics.PassCount++
			}
		}
	}

	if finalCount > 0 {
		analytics.AverageScore = scoreSum / float64(finalCount)
		analytics.AverageTimeSpent = timeSum / finalCount
		analytics.LowestScore = lowest
	}
	if submittedCount > 0 {
		analytics.PassRate = float64(analytics.PassCount) / float64(submittedCount)
	}
	return analytics
}

func hasFinalScore(attempt *models.Attempt) bool {
	switch attempt.Status {
	case models.AttemptSubmitted:
		return true
	case models.AttemptTimedOut:
		return attempt.PendingManualGrades() == 0
	default:
		return false
	}
}
