package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

// ===== PERMISSION CHECKS =====

// canManage allows the creator or an admin to change a quiz.
func canManage(quiz *models.Quiz, caller models.Caller) bool {
	if caller.IsAdmin() {
		return true
	}
	return caller.IsStaff() && quiz.CreatedBy == caller.ID
}

func (s *quizService) getQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *quizService) getManagedQuiz(ctx context.Context, id uint, caller models.Caller, action string) (*models.Quiz, error) {
	quiz, err := s.getQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(quiz, caller) {
		return nil, NewPermissionError(caller.ID, id, "quiz", action, "not owner")
	}
	return quiz, nil
}

// ===== SCHEDULING =====

// rearm replaces the timers of the quiz. Failures only delay the edges until
// the next poll, so they are logged rather than returned.
func (s *quizService) rearm(ctx context.Context, quiz *models.Quiz) {
	if s.armer == nil {
		return
	}
	if err := s.armer.Arm(ctx, quiz); err != nil {
		s.logger.Warn("Failed to arm quiz schedule", "quiz_id", quiz.ID, "error", err)
	}
}

func applyScheduleUpdate(current models.Schedule, req *UpdateScheduleRequest) models.Schedule {
	next := current
	if req.AvailableFrom != nil {
		next.AvailableFrom = req.AvailableFrom
	}
	if req.AvailableUntil != nil {
		next.AvailableUntil = req.AvailableUntil
	}
	if req.DueDate != nil {
		next.DueDate = req.DueDate
	}
	if req.ClearAvailableFrom {
		next.AvailableFrom = nil
	}
	if req.ClearAvailableUntil {
		next.AvailableUntil = nil
	}
	if req.ClearDueDate {
		next.DueDate = nil
	}
	return next
}

func applyDefinitionUpdate(quiz *models.Quiz, req *UpdateQuestionsRequest) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	if req.Questions != nil {
		quiz.Questions = req.Questions
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = *req.TimeLimit
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil {
		quiz.PassingScore = *req.PassingScore
	}
	if req.ShortAnswerManual != nil {
		quiz.ShortAnswerManual = *req.ShortAnswerManual
	}
}

// ===== RESPONSE SHAPING =====

// redactForStudent strips answer keys from a quiz copy.
func redactForStudent(quiz *models.Quiz) *models.Quiz {
	redacted := quiz.Clone()
	for i := range redacted.Questions {
		q := &redacted.Questions[i]
		q.CorrectAnswer = ""
		q.CorrectAnswers = nil
		q.Explanation = ""
		if q.Type == models.Matching {
			// Keep the right-hand items so the student can match them.
			for j := range q.Pairs {
				q.Pairs[j].Right = ""
			}
			q.Options = rightItems(quiz.Questions[i].Pairs)
		}
	}
	return redacted
}

func rightItems(pairs []models.MatchPair) []string {
	items := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		items = append(items, pair.Right)
	}
	sort.Strings(items)
	return items
}

func quizID(quiz *models.Quiz) uint {
	if quiz == nil {
		return 0
	}
	return quiz.ID
}
