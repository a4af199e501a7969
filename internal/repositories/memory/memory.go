// Package memory is an in-process Repository used by tests and by the
// service when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

type Store struct {
	mu        sync.Mutex
	nextQuiz  uint
	nextTry   uint
	quizzes   map[uint]*models.Quiz
	attempts  map[uint]*models.Attempt
	triggers  map[triggerKey]*models.ScheduleTrigger
	analytics map[uint]*models.QuizAnalytics
}

type triggerKey struct {
	quizID uint
	edge   models.ScheduleEdge
}

func New() *Store {
	return &Store{
		quizzes:   make(map[uint]*models.Quiz),
		attempts:  make(map[uint]*models.Attempt),
		triggers:  make(map[triggerKey]*models.ScheduleTrigger),
		analytics: make(map[uint]*models.QuizAnalytics),
	}
}

func (s *Store) Quiz() repositories.QuizRepository           { return quizStore{s} }
func (s *Store) Attempt() repositories.AttemptRepository     { return attemptStore{s} }
func (s *Store) Trigger() repositories.TriggerRepository     { return triggerStore{s} }
func (s *Store) Analytics() repositories.AnalyticsRepository { return analyticsStore{s} }

// ===== QUIZZES =====

type quizStore struct{ s *Store }

func (r quizStore) Create(_ context.Context, quiz *models.Quiz) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextQuiz++
	now := time.Now().UTC()
	quiz.ID = r.s.nextQuiz
	quiz.Version = 1
	quiz.CreatedAt, quiz.UpdatedAt = now, now
	r.s.quizzes[quiz.ID] = quiz.Clone()
	return nil
}

func (r quizStore) GetByID(_ context.Context, id uint) (*models.Quiz, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	quiz, ok := r.s.quizzes[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return quiz.Clone(), nil
}

func (r quizStore) Update(_ context.Context, quiz *models.Quiz) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.quizzes[quiz.ID]; !ok {
		return repositories.ErrNotFound
	}
	quiz.Version++
	quiz.UpdatedAt = time.Now().UTC()
	r.s.quizzes[quiz.ID] = quiz.Clone()
	return nil
}

func (r quizStore) Delete(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.quizzes[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.quizzes, id)
	return nil
}

func (r quizStore) List(_ context.Context, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*models.Quiz
	for _, quiz := range r.s.quizzes {
		if filters.CourseID != "" && quiz.CourseID != filters.CourseID {
			continue
		}
		if filters.CreatedBy != "" && quiz.CreatedBy != filters.CreatedBy {
			continue
		}
		if filters.IsPublished != nil && quiz.IsPublished != *filters.IsPublished {
			continue
		}
		matched = append(matched, quiz.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := int64(len(matched))
	return paginate(matched, filters.Offset, filters.Limit), total, nil
}

func (r quizStore) ListSchedulable(_ context.Context, now time.Time) ([]*models.Quiz, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*models.Quiz
	for _, quiz := range r.s.quizzes {
		if !quiz.IsPublished || (quiz.AvailableFrom == nil && quiz.AvailableUntil == nil) {
			continue
		}
		if quiz.AvailableUntil != nil && !quiz.AvailableUntil.After(now) {
			continue
		}
		result = append(result, quiz.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ===== ATTEMPTS =====

type attemptStore struct{ s *Store }

func (r attemptStore) Create(_ context.Context, attempt *models.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextTry++
	now := time.Now().UTC()
	attempt.ID = r.s.nextTry
	attempt.Version = 1
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	r.s.attempts[attempt.ID] = attempt.Clone()
	return nil
}

func (r attemptStore) GetByID(_ context.Context, id uint) (*models.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	attempt, ok := r.s.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return attempt.Clone(), nil
}

func (r attemptStore) UpdateIfVersion(_ context.Context, attempt *models.Attempt, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.attempts[attempt.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repositories.ErrStaleWrite
	}
	attempt.Version = expectedVersion + 1
	attempt.CreatedAt = stored.CreatedAt
	attempt.UpdatedAt = time.Now().UTC()
	r.s.attempts[attempt.ID] = attempt.Clone()
	return nil
}

func (r attemptStore) GetActiveAttempt(_ context.Context, quizID uint, studentID string) (*models.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, attempt := range r.s.attempts {
		if attempt.QuizID == quizID && attempt.StudentID == studentID && attempt.IsInProgress() {
			return attempt.Clone(), nil
		}
	}
	return nil, nil
}

func (r attemptStore) ListByQuiz(_ context.Context, quizID uint, filters repositories.AttemptFilters) ([]*models.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*models.Attempt
	for _, attempt := range r.s.attempts {
		if attempt.QuizID != quizID {
			continue
		}
		if filters.Status != "" && attempt.Status != filters.Status {
			continue
		}
		if filters.StudentID != "" && attempt.StudentID != filters.StudentID {
			continue
		}
		result = append(result, attempt.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return paginate(result, filters.Offset, filters.Limit), nil
}

func (r attemptStore) CountByQuiz(_ context.Context, quizID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, attempt := range r.s.attempts {
		if attempt.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (r attemptStore) CountSubmitted(_ context.Context, quizID uint, studentID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, attempt := range r.s.attempts {
		if attempt.QuizID == quizID && attempt.StudentID == studentID && attempt.SubmittedAt != nil {
			count++
		}
	}
	return count, nil
}

// ===== TRIGGERS =====

type triggerStore struct{ s *Store }

func (r triggerStore) Upsert(_ context.Context, trigger *models.ScheduleTrigger) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *trigger
	c.UpdatedAt = time.Now().UTC()
	r.s.triggers[triggerKey{trigger.QuizID, trigger.Edge}] = &c
	return nil
}

func (r triggerStore) Get(_ context.Context, quizID uint, edge models.ScheduleEdge) (*models.ScheduleTrigger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	trigger, ok := r.s.triggers[triggerKey{quizID, edge}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *trigger
	return &c, nil
}

func (r triggerStore) DeleteByQuiz(_ context.Context, quizID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.triggers, triggerKey{quizID, models.EdgeStart})
	delete(r.s.triggers, triggerKey{quizID, models.EdgeEnd})
	return nil
}

func (r triggerStore) ListDue(_ context.Context, now time.Time) ([]*models.ScheduleTrigger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []*models.ScheduleTrigger
	for _, trigger := range r.s.triggers {
		if trigger.Due(now) {
			c := *trigger
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	return due, nil
}

func (r triggerStore) Claim(_ context.Context, quizID uint, edge models.ScheduleEdge, now time.Time) (*models.ScheduleTrigger, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	trigger, ok := r.s.triggers[triggerKey{quizID, edge}]
	if !ok || !trigger.Due(now) {
		return nil, false, nil
	}
	firedAt := now
	trigger.Status = models.TriggerFired
	trigger.FireCount++
	trigger.FiredAt = &firedAt
	trigger.LastError = ""
	c := *trigger
	return &c, true, nil
}

func (r triggerStore) MarkRetry(_ context.Context, quizID uint, edge models.ScheduleEdge, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	trigger, ok := r.s.triggers[triggerKey{quizID, edge}]
	if !ok {
		return repositories.ErrNotFound
	}
	trigger.Status = models.TriggerRetry
	trigger.LastError = reason
	return nil
}

// ===== ANALYTICS =====

type analyticsStore struct{ s *Store }

func (r analyticsStore) Upsert(_ context.Context, analytics *models.QuizAnalytics) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *analytics
	r.s.analytics[analytics.QuizID] = &c
	return nil
}

func (r analyticsStore) Get(_ context.Context, quizID uint) (*models.QuizAnalytics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	analytics, ok := r.s.analytics[quizID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *analytics
	return &c, nil
}

func (r analyticsStore) Delete(_ context.Context, quizID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.analytics, quizID)
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
