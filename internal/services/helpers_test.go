package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/enrollment"
	"github.com/SAP-F-2025/quiz-engine/internal/events"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories/memory"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
)

var (
	teacher = models.Caller{ID: "t1", Role: models.RoleTeacher}
	admin   = models.Caller{ID: "a1", Role: models.RoleAdmin}
	alice   = models.Caller{ID: "alice", Role: models.RoleStudent}
	bob     = models.Caller{ID: "bob", Role: models.RoleStudent}
)

type testEnv struct {
	store     *memory.Store
	clock     *clock.Fake
	publisher *events.MockEventPublisher
	roster    *enrollment.StaticChecker
	armer     *recordingArmer
	quizzes   QuizService
	attempts  AttemptService
	analytics AnalyticsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:     memory.New(),
		clock:     clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		publisher: events.NewMockEventPublisher(logger),
		roster:    enrollment.NewStaticChecker(),
		armer:     &recordingArmer{},
	}
	env.roster.Enroll("bio-101", alice.ID, bob.ID)

	notifier := notify.NewEventNotifier(env.publisher, env.clock, logger)
	v := validator.New()
	env.analytics = NewAnalyticsService(env.store, env.clock, logger)
	env.attempts = NewAttemptService(env.store, env.roster, env.analytics, notifier, env.clock, logger, v)
	env.quizzes = NewQuizService(env.store, env.armer, notifier, env.clock, logger, v)
	return env
}

// createQuiz stores a published quiz of the given questions in bio-101.
func (e *testEnv) createQuiz(t *testing.T, questions []models.Question, mutate func(*CreateQuizRequest)) *models.Quiz {
	t.Helper()
	req := &CreateQuizRequest{
		CourseID:     "bio-101",
		Title:        "Cells",
		Questions:    questions,
		PassingScore: 50,
		IsPublished:  true,
	}
	if mutate != nil {
		mutate(req)
	}
	quiz, err := e.quizzes.Create(context.Background(), req, teacher)
	require.NoError(t, err)
	return quiz
}

func mcQuestion(id string, points float64) models.Question {
	return models.Question{
		ID:            id,
		Type:          models.MultipleChoice,
		Text:          "Which organelle makes ATP?",
		Points:        points,
		Options:       []string{"Mitochondria", "Ribosome"},
		CorrectAnswer: "Mitochondria",
	}
}

func essayQuestion(id string, points float64) models.Question {
	return models.Question{ID: id, Type: models.Essay, Text: "Explain osmosis.", Points: points}
}

type recordingArmer struct {
	armed     []uint
	cancelled []uint
}

func (a *recordingArmer) Arm(_ context.Context, quiz *models.Quiz) error {
	a.armed = append(a.armed, quiz.ID)
	return nil
}

func (a *recordingArmer) Cancel(_ context.Context, quizID uint) error {
	a.cancelled = append(a.cancelled, quizID)
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
