package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/enrollment"
	"github.com/SAP-F-2025/quiz-engine/internal/lifecycle"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/scoring"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
)

// maxTransitionRetries bounds how often a transition is recomputed after
// losing a conditional write.
const maxTransitionRetries = 5

type attemptService struct {
	repo       repositories.Repository
	enrollment enrollment.Checker
	analytics  AnalyticsService
	notifier   notify.AttemptNotifier
	clock      clock.Clock
	logger     *slog.Logger
	ops        *ServiceLogger
	validator  *validator.Validator
	starts     singleflight.Group
}

func NewAttemptService(
	repo repositories.Repository,
	checker enrollment.Checker,
	analytics AnalyticsService,
	notifier notify.AttemptNotifier,
	clk clock.Clock,
	logger *slog.Logger,
	v *validator.Validator,
) AttemptService {
	return &attemptService{
		repo:       repo,
		enrollment: checker,
		analytics:  analytics,
		notifier:   notifier,
		clock:      clk,
		logger:     logger,
		ops:        NewServiceLogger(logger, LogConfig{Service: "quiz-engine", Component: "attempt"}),
		validator:  v,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start returns the student's open attempt or creates a new one. Concurrent
// starts by the same student for the same quiz share one result.
func (s *attemptService) Start(ctx context.Context, quizID uint, caller models.Caller) (attempt *models.Attempt, err error) {
	op := s.ops.WithOperation(ctx, "start_attempt", caller.ID)
	defer func() { op.LogResult(quizID, "quiz", err) }()

	key := fmt.Sprintf("%d:%s", quizID, caller.ID)
	// The shared call outlives any single waiter's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.starts.Do(key, func() (interface{}, error) {
		return s.start(shared, quizID, caller)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Attempt).Clone(), nil
}

func (s *attemptService) start(ctx context.Context, quizID uint, caller models.Caller) (*models.Attempt, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.IsAvailable(quiz, s.clock.Now()) {
		return nil, ErrQuizNotAvailable
	}
	if !caller.IsStaff() {
		enrolled, err := s.enrollment.IsEnrolled(ctx, caller.ID, quiz.CourseID)
		if err != nil {
			return nil, fmt.Errorf("failed to check enrollment: %w", err)
		}
		if !enrolled {
			return nil, ErrNotEnrolled
		}
	}

	active, err := s.repo.Attempt().GetActiveAttempt(ctx, quizID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	if active != nil {
		if !lifecycle.Expired(quiz, active, s.clock.Now()) {
			s.logger.Info("Resuming existing attempt", "attempt_id", active.ID, "quiz_id", quizID)
			return active, nil
		}
		if _, err := s.transition(ctx, active.ID, lifecycle.SubmitEvent(), nil); err != nil {
			return nil, fmt.Errorf("failed to close expired attempt: %w", err)
		}
	}

	submitted, err := s.repo.Attempt().CountSubmitted(ctx, quizID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if quiz.MaxAttempts > 0 && submitted >= quiz.MaxAttempts {
		return nil, ErrAttemptLimitReached
	}

	attempt := &models.Attempt{
		QuizID:        quizID,
		StudentID:     caller.ID,
		Status:        models.AttemptInProgress,
		AttemptNumber: submitted + 1,
		StartedAt:     s.clock.Now(),
		Answers:       []models.Answer{},
		TotalPossible: quiz.TotalPoints(),
		Version:       1,
	}
	if err := s.repo.Attempt().Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quizID,
		"student_id", caller.ID,
		"attempt", attempt.AttemptNumber)
	return attempt, nil
}

// Get returns the attempt. An open attempt whose time limit has run out is
// closed first so readers never see a stale in_progress status.
func (s *attemptService) Get(ctx context.Context, id uint, caller models.Caller) (*models.Attempt, error) {
	attempt, err := s.getAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(attempt, caller) {
		return nil, NewPermissionError(caller.ID, id, "attempt", "read", "not owned by caller")
	}
	if !attempt.IsInProgress() {
		return attempt, nil
	}

	quiz, err := s.getQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Expired(quiz, attempt, s.clock.Now()) {
		return attempt, nil
	}
	return s.transition(ctx, id, lifecycle.SubmitEvent(), nil)
}

func (s *attemptService) ListByQuiz(ctx context.Context, quizID uint, filters repositories.AttemptFilters, caller models.Caller) ([]*models.Attempt, error) {
	if !caller.IsStaff() {
		filters.StudentID = caller.ID
	}
	if _, err := s.getQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.repo.Attempt().ListByQuiz(ctx, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

func (s *attemptService) RecordAnswer(ctx context.Context, attemptID uint, questionID string, payload json.RawMessage, caller models.Caller) (attempt *models.Attempt, err error) {
	op := s.ops.WithOperation(ctx, "record_answer", caller.ID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	guard := func(quiz *models.Quiz, current *models.Attempt) error {
		if current.StudentID != caller.ID {
			return NewPermissionError(caller.ID, attemptID, "attempt", "answer", "not owned by student")
		}
		question, ok := quiz.Question(questionID)
		if !ok || !current.IsInProgress() {
			return nil
		}
		if err := scoring.ValidateAnswer(question, payload); err != nil {
			return ValidationErrors{}.Add("answer", err.Error(), nil)
		}
		return nil
	}

	attempt, err = s.transition(ctx, attemptID, lifecycle.AnswerEvent(questionID, payload), guard)
	switch {
	case errors.Is(err, lifecycle.ErrTimeExpired):
		closed, closeErr := s.transition(ctx, attemptID, lifecycle.SubmitEvent(), nil)
		if closeErr != nil {
			return nil, fmt.Errorf("failed to close expired attempt: %w", closeErr)
		}
		return nil, &AttemptConflictError{Err: ErrAttemptAlreadySubmitted, Attempt: closed}
	case errors.Is(err, lifecycle.ErrNotInProgress):
		return nil, &AttemptConflictError{Err: ErrAttemptAlreadySubmitted, Attempt: attempt}
	case errors.Is(err, lifecycle.ErrUnknownQuestion):
		return nil, ErrQuestionNotFound
	case err != nil:
		return nil, err
	}
	return attempt, nil
}

// Submit is idempotent: an attempt that is already closed is returned as
// stored.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, caller models.Caller) (attempt *models.Attempt, err error) {
	op := s.ops.WithOperation(ctx, "submit_attempt", caller.ID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	return s.transition(ctx, attemptID, lifecycle.SubmitEvent(), ownerOnly(caller, "submit"))
}

func (s *attemptService) Abandon(ctx context.Context, attemptID uint, caller models.Caller) (attempt *models.Attempt, err error) {
	op := s.ops.WithOperation(ctx, "abandon_attempt", caller.ID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	attempt, err = s.transition(ctx, attemptID, lifecycle.AbandonEvent(), ownerOrManager(caller, "abandon"))
	if errors.Is(err, lifecycle.ErrNotInProgress) {
		return nil, &AttemptConflictError{Err: ErrAttemptAlreadySubmitted, Attempt: attempt}
	}
	return attempt, err
}

func (s *attemptService) Grade(ctx context.Context, attemptID uint, req *GradeAttemptRequest, caller models.Caller) (attempt *models.Attempt, err error) {
	op := s.ops.WithOperation(ctx, "grade_attempt", caller.ID)
	defer func() { op.LogResult(attemptID, "attempt", err) }()

	if !caller.IsStaff() {
		return nil, NewPermissionError(caller.ID, attemptID, "attempt", "grade", "only teachers and admins grade")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	grades := make(map[string]lifecycle.Grade, len(req.Grades))
	for questionID, g := range req.Grades {
		grades[questionID] = lifecycle.Grade{Points: g.Score, Feedback: g.Feedback}
	}

	attempt, err = s.transition(ctx, attemptID, lifecycle.GradeEvent(caller.ID, grades), managerOnly(caller, "grade"))
	switch {
	case errors.Is(err, lifecycle.ErrNotGradable):
		return nil, ErrAttemptNotGradable
	case errors.Is(err, lifecycle.ErrUnknownQuestion):
		return nil, fmt.Errorf("%w: %v", ErrQuestionNotFound, err)
	case errors.Is(err, lifecycle.ErrNotFlagged), errors.Is(err, lifecycle.ErrInvalidGrade):
		return nil, ValidationErrors{}.Add("grades", err.Error(), nil)
	case err != nil:
		return nil, err
	}
	return attempt, nil
}

// CloseQuiz times out every open attempt of a quiz. Failures of single
// attempts do not stop the others and are returned joined.
func (s *attemptService) CloseQuiz(ctx context.Context, quizID uint) (int, error) {
	open, err := s.repo.Attempt().ListByQuiz(ctx, quizID, repositories.AttemptFilters{Status: models.AttemptInProgress})
	if err != nil {
		return 0, fmt.Errorf("failed to list open attempts: %w", err)
	}

	closed := 0
	var errs []error
	for _, attempt := range open {
		_, changed, err := s.apply(ctx, attempt.ID, lifecycle.TimeoutEvent(), nil)
		if err != nil {
			s.logger.Error("Failed to close attempt", "attempt_id", attempt.ID, "quiz_id", quizID, "error", err)
			errs = append(errs, fmt.Errorf("attempt %d: %w", attempt.ID, err))
			continue
		}
		if changed {
			closed++
		}
	}

	if closed > 0 {
		s.logger.Info("Closed open attempts", "quiz_id", quizID, "count", closed)
	}
	return closed, errors.Join(errs...)
}
