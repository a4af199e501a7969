// Package scheduler fires the start and end edges of quiz availability
// windows. Each edge is a one-shot timer backed by a persisted trigger so a
// fire missed while the process was down is picked up by the poller.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/lifecycle"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

// AttemptCloser forces every open attempt of a quiz through a timeout.
type AttemptCloser interface {
	CloseQuiz(ctx context.Context, quizID uint) (int, error)
}

type timerKey struct {
	quizID uint
	edge   models.ScheduleEdge
}

type armedTimer struct {
	timer clock.Timer
	gen   uint64
}

type Scheduler struct {
	clock        clock.Clock
	quizzes      repositories.QuizRepository
	triggers     repositories.TriggerRepository
	closer       AttemptCloser
	notifier     notify.Notifier
	logger       *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	timers  map[timerKey]armedTimer
	gen     uint64
	baseCtx context.Context
	poller  *cron.Cron
}

func New(
	clk clock.Clock,
	quizzes repositories.QuizRepository,
	triggers repositories.TriggerRepository,
	closer AttemptCloser,
	notifier notify.Notifier,
	logger *slog.Logger,
	pollInterval time.Duration,
) *Scheduler {
	return &Scheduler{
		clock:        clk,
		quizzes:      quizzes,
		triggers:     triggers,
		closer:       closer,
		notifier:     notifier,
		logger:       logger.With("component", "scheduler"),
		pollInterval: pollInterval,
		timers:       make(map[timerKey]armedTimer),
		baseCtx:      context.Background(),
	}
}

// Start arms every quiz that still has an edge ahead of it, fires the
// triggers that fell due while the process was down and starts the poller.
// A zero poll interval disables the poller.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	quizzes, err := s.quizzes.ListSchedulable(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to list schedulable quizzes: %w", err)
	}
	for _, quiz := range quizzes {
		if err := s.Arm(ctx, quiz); err != nil {
			s.logger.Error("Failed to arm quiz", "quiz_id", quiz.ID, "error", err)
		}
	}

	if err := s.Tick(ctx); err != nil {
		s.logger.Warn("Initial trigger scan had failures", "error", err)
	}

	if s.pollInterval > 0 {
		poller := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := poller.AddFunc("@every "+s.pollInterval.String(), func() {
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("Trigger poll had failures", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule trigger poller: %w", err)
		}
		poller.Start()

		s.mu.Lock()
		s.poller = poller
		s.mu.Unlock()
	}

	s.logger.Info("Scheduler started", "armed_quizzes", len(quizzes), "poll_interval", s.pollInterval)
	return nil
}

// Stop halts the poller, waits for a running poll to finish and drops
// every armed timer. Persisted triggers are kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	poller := s.poller
	s.poller = nil
	for key, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if poller != nil {
		<-poller.Stop().Done()
	}
	s.logger.Info("Scheduler stopped")
}

// Arm replaces the timers and triggers of a quiz with ones matching its
// current schedule. Only the nearest future edge gets a timer. A due
// trigger that has not fired yet is kept for the poller as long as its
// edge did not move. An end edge moved into the past before it fired is
// closed right away.
func (s *Scheduler) Arm(ctx context.Context, quiz *models.Quiz) error {
	s.stopTimers(quiz.ID)

	previous := make(map[models.ScheduleEdge]*models.ScheduleTrigger, 2)
	for _, edge := range []models.ScheduleEdge{models.EdgeStart, models.EdgeEnd} {
		trigger, err := s.triggers.Get(ctx, quiz.ID, edge)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to load %s trigger: %w", edge, err)
		}
		previous[edge] = trigger
	}
	if err := s.triggers.DeleteByQuiz(ctx, quiz.ID); err != nil {
		return fmt.Errorf("failed to reset triggers: %w", err)
	}
	if !quiz.IsPublished {
		s.logger.Debug("Quiz unpublished, nothing armed", "quiz_id", quiz.ID)
		return nil
	}

	now := s.clock.Now()
	edges := []struct {
		edge models.ScheduleEdge
		at   *time.Time
	}{
		{models.EdgeStart, quiz.AvailableFrom},
		{models.EdgeEnd, quiz.AvailableUntil},
	}

	armed := false
	for _, e := range edges {
		if e.at == nil {
			continue
		}
		if !e.at.After(now) {
			old := previous[e.edge]
			switch {
			case old != nil && old.Status != models.TriggerFired && old.FireAt.Equal(*e.at):
				if err := s.triggers.Upsert(ctx, old); err != nil {
					return fmt.Errorf("failed to keep %s trigger: %w", e.edge, err)
				}
			case e.edge == models.EdgeEnd && (old == nil || old.Status != models.TriggerFired):
				// The window was pulled back behind now before it closed.
				// The close still has to run for attempts left open.
				if err := s.triggers.Upsert(ctx, &models.ScheduleTrigger{
					QuizID: quiz.ID,
					Edge:   models.EdgeEnd,
					FireAt: *e.at,
					Status: models.TriggerPending,
				}); err != nil {
					return fmt.Errorf("failed to persist %s trigger: %w", e.edge, err)
				}
				s.armTimer(quiz.ID, models.EdgeEnd, now)
			}
			continue
		}

		trigger := &models.ScheduleTrigger{
			QuizID: quiz.ID,
			Edge:   e.edge,
			FireAt: *e.at,
			Status: models.TriggerPending,
		}
		if err := s.triggers.Upsert(ctx, trigger); err != nil {
			return fmt.Errorf("failed to persist %s trigger: %w", e.edge, err)
		}
		if !armed {
			s.armTimer(quiz.ID, e.edge, *e.at)
			armed = true
		}
	}
	return nil
}

// Cancel stops the timers of a quiz and forgets its triggers.
func (s *Scheduler) Cancel(ctx context.Context, quizID uint) error {
	s.stopTimers(quizID)
	if err := s.triggers.DeleteByQuiz(ctx, quizID); err != nil {
		return fmt.Errorf("failed to delete triggers: %w", err)
	}
	s.logger.Debug("Quiz schedule cancelled", "quiz_id", quizID)
	return nil
}

// Tick fires every trigger that is due and not yet fired.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.triggers.ListDue(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to list due triggers: %w", err)
	}

	var errs []error
	for _, trigger := range due {
		if err := s.fire(ctx, trigger.QuizID, trigger.Edge); err != nil {
			errs = append(errs, fmt.Errorf("quiz %d %s: %w", trigger.QuizID, trigger.Edge, err))
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) armTimer(quizID uint, edge models.ScheduleEdge, at time.Time) {
	key := timerKey{quizID: quizID, edge: edge}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	timer := s.clock.AfterFunc(at.Sub(s.clock.Now()), func() { s.onTimer(key, gen) })
	s.timers[key] = armedTimer{timer: timer, gen: gen}

	s.logger.Debug("Timer armed", "quiz_id", quizID, "edge", edge, "fire_at", at)
}

func (s *Scheduler) stopTimers(quizID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, edge := range []models.ScheduleEdge{models.EdgeStart, models.EdgeEnd} {
		key := timerKey{quizID: quizID, edge: edge}
		if armed, ok := s.timers[key]; ok {
			armed.timer.Stop()
			delete(s.timers, key)
		}
	}
}

func (s *Scheduler) onTimer(key timerKey, gen uint64) {
	s.mu.Lock()
	current, ok := s.timers[key]
	if !ok || current.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	ctx := s.baseCtx
	s.mu.Unlock()

	if err := s.fire(ctx, key.quizID, key.edge); err != nil {
		s.logger.Warn("Timer fire failed", "quiz_id", key.quizID, "edge", key.edge, "error", err)
	}
}

// fire claims a trigger and runs its edge. A trigger that another caller
// already claimed is skipped.
func (s *Scheduler) fire(ctx context.Context, quizID uint, edge models.ScheduleEdge) error {
	trigger, claimed, err := s.triggers.Claim(ctx, quizID, edge, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to claim trigger: %w", err)
	}
	if !claimed {
		s.logger.Debug("Trigger already handled", "quiz_id", quizID, "edge", edge)
		return nil
	}

	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		s.markRetry(ctx, trigger, err)
		return fmt.Errorf("failed to load quiz: %w", err)
	}

	switch edge {
	case models.EdgeStart:
		return s.fireStart(ctx, quiz)
	case models.EdgeEnd:
		return s.fireEnd(ctx, quiz, trigger)
	default:
		return fmt.Errorf("unknown schedule edge %q", edge)
	}
}

func (s *Scheduler) fireStart(ctx context.Context, quiz *models.Quiz) error {
	now := s.clock.Now()
	if lifecycle.IsAvailable(quiz, now) {
		s.notifier.Notify(ctx, models.NotificationQuizOpened, quiz.ID, models.CourseAudience(quiz.CourseID))
		s.logger.Info("Quiz opened", "quiz_id", quiz.ID, "course_id", quiz.CourseID)
	}
	if quiz.IsPublished && quiz.AvailableUntil != nil && quiz.AvailableUntil.After(now) {
		s.armTimer(quiz.ID, models.EdgeEnd, *quiz.AvailableUntil)
	}
	return nil
}

func (s *Scheduler) fireEnd(ctx context.Context, quiz *models.Quiz, trigger *models.ScheduleTrigger) error {
	closed, err := s.closer.CloseQuiz(ctx, quiz.ID)
	if err != nil {
		s.markRetry(ctx, trigger, err)
		return fmt.Errorf("failed to close quiz: %w", err)
	}

	s.notifier.Notify(ctx, models.NotificationQuizClosed, quiz.ID, models.CourseAudience(quiz.CourseID))
	s.logger.Info("Quiz closed", "quiz_id", quiz.ID, "closed_attempts", closed, "fire_count", trigger.FireCount)
	return nil
}

func (s *Scheduler) markRetry(ctx context.Context, trigger *models.ScheduleTrigger, cause error) {
	if err := s.triggers.MarkRetry(ctx, trigger.QuizID, trigger.Edge, cause.Error()); err != nil {
		s.logger.Error("Failed to mark trigger for retry",
			"quiz_id", trigger.QuizID,
			"edge", trigger.Edge,
			"error", err)
		return
	}
	s.logger.Warn("Trigger will be retried",
		"quiz_id", trigger.QuizID,
		"edge", trigger.Edge,
		"cause", cause)
}
