package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/quiz-engine/internal/lifecycle"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

// guardFunc runs against freshly loaded state before each transition try.
type guardFunc func(quiz *models.Quiz, attempt *models.Attempt) error

// ===== PERMISSION CHECKS =====

func canView(attempt *models.Attempt, caller models.Caller) bool {
	return caller.IsStaff() || attempt.StudentID == caller.ID
}

func ownerOnly(caller models.Caller, action string) guardFunc {
	return func(_ *models.Quiz, attempt *models.Attempt) error {
		if attempt.StudentID != caller.ID {
			return NewPermissionError(caller.ID, attempt.ID, "attempt", action, "not owned by student")
		}
		return nil
	}
}

// ownerOrManager lets the student or the quiz's managers act, as when staff
// clean up a stuck attempt.
func ownerOrManager(caller models.Caller, action string) guardFunc {
	return func(quiz *models.Quiz, attempt *models.Attempt) error {
		if attempt.StudentID == caller.ID || canManage(quiz, caller) {
			return nil
		}
		return NewPermissionError(caller.ID, attempt.ID, "attempt", action, "not the student or a quiz manager")
	}
}

func managerOnly(caller models.Caller, action string) guardFunc {
	return func(quiz *models.Quiz, attempt *models.Attempt) error {
		if !canManage(quiz, caller) {
			return NewPermissionError(caller.ID, attempt.ID, "attempt", action, "only the quiz creator or an admin")
		}
		return nil
	}
}

// ===== TRANSITIONS =====

// transition applies event to the stored attempt and returns the result.
// Lifecycle errors come back together with the attempt as currently stored.
func (s *attemptService) transition(ctx context.Context, attemptID uint, event lifecycle.Event, guard guardFunc) (*models.Attempt, error) {
	attempt, _, err := s.apply(ctx, attemptID, event, guard)
	return attempt, err
}

// apply is a read, pure transition, conditional write loop. A lost write
// reloads the attempt and recomputes the transition from the winner's state,
// so two racing closes produce exactly one terminal write. changed reports
// whether this call wrote.
func (s *attemptService) apply(ctx context.Context, attemptID uint, event lifecycle.Event, guard guardFunc) (*models.Attempt, bool, error) {
	for try := 0; try < maxTransitionRetries; try++ {
		current, err := s.getAttempt(ctx, attemptID)
		if err != nil {
			return nil, false, err
		}
		quiz, err := s.getQuiz(ctx, current.QuizID)
		if err != nil {
			return nil, false, err
		}
		if guard != nil {
			if err := guard(quiz, current); err != nil {
				return nil, false, err
			}
		}

		closing := event.Kind == lifecycle.EventSubmit || event.Kind == lifecycle.EventTimeout
		if closing && !current.IsInProgress() {
			return current, false, nil
		}

		next, effects, err := lifecycle.Apply(quiz, current, event, s.clock.Now())
		if err != nil {
			return current, false, err
		}

		if err := s.repo.Attempt().UpdateIfVersion(ctx, next, current.Version); err != nil {
			if errors.Is(err, repositories.ErrStaleWrite) {
				s.logger.Debug("Attempt write lost a race, retrying",
					"attempt_id", attemptID,
					"event", event.Kind,
					"try", try+1)
				continue
			}
			return nil, false, fmt.Errorf("failed to save attempt: %w", err)
		}

		if next.Status != current.Status {
			s.logger.Info("Attempt transitioned",
				"attempt_id", attemptID,
				"quiz_id", quiz.ID,
				"from", current.Status,
				"to", next.Status,
				"event", event.Kind)
		}
		s.dispatch(ctx, quiz, next, effects)
		return next, true, nil
	}
	return nil, false, ErrAttemptContention
}

// dispatch performs the effects of a persisted transition. Effects never
// fail the transition.
func (s *attemptService) dispatch(ctx context.Context, quiz *models.Quiz, attempt *models.Attempt, effects []lifecycle.Effect) {
	for _, effect := range effects {
		switch effect.Kind {
		case lifecycle.EffectRecomputeAnalytics:
			if s.analytics == nil {
				continue
			}
			if _, err := s.analytics.Recompute(ctx, quiz.ID); err != nil {
				s.logger.Warn("Failed to recompute quiz analytics", "quiz_id", quiz.ID, "error", err)
			}
		case lifecycle.EffectNotify:
			if s.notifier != nil {
				s.notifier.NotifyAttempt(ctx, effect.Notification, quiz.ID, attempt.ID, effect.Audience)
			}
		}
	}
}

// ===== HELPER FUNCTIONS =====

func (s *attemptService) getQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

func (s *attemptService) getAttempt(ctx context.Context, id uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}
