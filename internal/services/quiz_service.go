package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/lifecycle"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/scoring"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	armer     ScheduleArmer
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	ops       *ServiceLogger
	validator *validator.Validator
}

func NewQuizService(repo repositories.Repository, armer ScheduleArmer, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger, v *validator.Validator) QuizService {
	return &quizService{
		repo:      repo,
		armer:     armer,
		notifier:  notifier,
		clock:     clk,
		logger:    logger,
		ops:       NewServiceLogger(logger, LogConfig{Service: "quiz-engine", Component: "quiz"}),
		validator: v,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, caller models.Caller) (quiz *models.Quiz, err error) {
	op := s.ops.WithOperation(ctx, "create_quiz", caller.ID)
	defer func() { op.LogResult(quizID(quiz), "quiz", err) }()

	if !caller.IsStaff() {
		return nil, NewPermissionError(caller.ID, 0, "quiz", "create", "only teachers and admins create quizzes")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := scoring.Validate(req.Questions); err != nil {
		return nil, err
	}

	quiz = &models.Quiz{
		CourseID:          req.CourseID,
		BranchID:          req.BranchID,
		Title:             req.Title,
		Description:       req.Description,
		Questions:         req.Questions,
		TimeLimit:         req.TimeLimit,
		MaxAttempts:       req.MaxAttempts,
		PassingScore:      req.PassingScore,
		AvailableFrom:     req.AvailableFrom,
		AvailableUntil:    req.AvailableUntil,
		DueDate:           req.DueDate,
		IsPublished:       req.IsPublished,
		ShortAnswerManual: req.ShortAnswerManual,
		CreatedBy:         caller.ID,
		Version:           1,
	}
	if !lifecycle.ValidateWindow(quiz.Schedule()) {
		return nil, ErrSchedulingConflict
	}
	if quiz.IsPublished && len(quiz.Questions) == 0 {
		return nil, ErrQuizEmpty
	}

	if err := s.repo.Quiz().Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.rearm(ctx, quiz)
	if quiz.IsPublished && lifecycle.IsAvailable(quiz, s.clock.Now()) {
		s.notifier.Notify(ctx, models.NotificationQuizOpened, quiz.ID, models.CourseAudience(quiz.CourseID))
	}
	return quiz, nil
}

func (s *quizService) Get(ctx context.Context, id uint, caller models.Caller) (*models.Quiz, error) {
	quiz, err := s.getQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsStaff() {
		return quiz, nil
	}
	if !quiz.IsPublished {
		return nil, ErrQuizNotFound
	}
	return redactForStudent(quiz), nil
}

func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters, caller models.Caller) (*QuizListResponse, error) {
	switch {
	case caller.IsAdmin():
	case caller.IsStaff():
		filters.CreatedBy = caller.ID
	default:
		published := true
		filters.IsPublished = &published
	}
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}

	quizzes, total, err := s.repo.Quiz().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	if !caller.IsStaff() {
		for i, quiz := range quizzes {
			quizzes[i] = redactForStudent(quiz)
		}
	}
	return &QuizListResponse{Quizzes: quizzes, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

func (s *quizService) UpdateSchedule(ctx context.Context, id uint, req *UpdateScheduleRequest, caller models.Caller) (quiz *models.Quiz, err error) {
	op := s.ops.WithOperation(ctx, "update_schedule", caller.ID)
	defer func() { op.LogResult(id, "quiz", err) }()

	quiz, err = s.getManagedQuiz(ctx, id, caller, "update_schedule")
	if err != nil {
		return nil, err
	}

	schedule := applyScheduleUpdate(quiz.Schedule(), req)
	if !lifecycle.ValidateWindow(schedule) {
		return nil, ErrSchedulingConflict
	}
	wasAvailable := lifecycle.IsAvailable(quiz, s.clock.Now())
	quiz.SetSchedule(schedule)

	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz schedule: %w", err)
	}

	s.rearm(ctx, quiz)
	if !wasAvailable && lifecycle.IsAvailable(quiz, s.clock.Now()) {
		s.notifier.Notify(ctx, models.NotificationQuizOpened, quiz.ID, models.CourseAudience(quiz.CourseID))
	}
	return quiz, nil
}

func (s *quizService) UpdateQuestions(ctx context.Context, id uint, req *UpdateQuestionsRequest, caller models.Caller) (quiz *models.Quiz, err error) {
	op := s.ops.WithOperation(ctx, "update_questions", caller.ID)
	defer func() { op.LogResult(id, "quiz", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	quiz, err = s.getManagedQuiz(ctx, id, caller, "update")
	if err != nil {
		return nil, err
	}

	if req.touchesLockedFields() {
		attempts, err := s.repo.Attempt().CountByQuiz(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		if attempts > 0 {
			return nil, ErrQuizHasAttempts
		}
	}
	if req.Questions != nil {
		if err := scoring.Validate(req.Questions); err != nil {
			return nil, err
		}
		if quiz.IsPublished && len(req.Questions) == 0 {
			return nil, ErrQuizEmpty
		}
	}

	applyDefinitionUpdate(quiz, req)
	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	return quiz, nil
}

func (s *quizService) SetPublished(ctx context.Context, id uint, published bool, caller models.Caller) (quiz *models.Quiz, err error) {
	op := s.ops.WithOperation(ctx, "set_published", caller.ID)
	defer func() { op.LogResult(id, "quiz", err) }()

	quiz, err = s.getManagedQuiz(ctx, id, caller, "publish")
	if err != nil {
		return nil, err
	}
	if quiz.IsPublished == published {
		return quiz, nil
	}
	if published && len(quiz.Questions) == 0 {
		return nil, ErrQuizEmpty
	}

	quiz.IsPublished = published
	if err := s.repo.Quiz().Update(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}

	s.rearm(ctx, quiz)
	if published && lifecycle.IsAvailable(quiz, s.clock.Now()) {
		s.notifier.Notify(ctx, models.NotificationQuizOpened, quiz.ID, models.CourseAudience(quiz.CourseID))
	}
	return quiz, nil
}

func (s *quizService) Delete(ctx context.Context, id uint, caller models.Caller) (err error) {
	op := s.ops.WithOperation(ctx, "delete_quiz", caller.ID)
	defer func() { op.LogResult(id, "quiz", err) }()

	if _, err := s.getManagedQuiz(ctx, id, caller, "delete"); err != nil {
		return err
	}
	attempts, err := s.repo.Attempt().CountByQuiz(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}
	if attempts > 0 {
		return ErrQuizHasAttempts
	}

	if s.armer != nil {
		if err := s.armer.Cancel(ctx, id); err != nil {
			s.logger.Warn("Failed to cancel quiz timers", "quiz_id", id, "error", err)
		}
	}
	if err := s.repo.Quiz().Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	if err := s.repo.Analytics().Delete(ctx, id); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("Failed to delete quiz analytics", "quiz_id", id, "error", err)
	}
	return nil
}

func (s *quizService) Availability(ctx context.Context, id uint) (*lifecycle.Availability, error) {
	quiz, err := s.getQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	availability := lifecycle.Describe(quiz, s.clock.Now())
	return &availability, nil
}
