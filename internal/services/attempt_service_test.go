package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/quiz-engine/internal/enrollment"
	"github.com/SAP-F-2025/quiz-engine/internal/events"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/notify"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
	"github.com/SAP-F-2025/quiz-engine/internal/validator"
)

func TestStartAttemptIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 2)}, nil)

	first, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	second, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.AttemptInProgress, second.Status)
	assert.Equal(t, 1, second.AttemptNumber)
	assert.Equal(t, 2.0, second.TotalPossible)
}

func TestStartAttemptConcurrentCallsShareOneAttempt(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 2)}, nil)

	var wg sync.WaitGroup
	ids := make([]uint, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, err := env.attempts.Start(context.Background(), quiz.ID, alice)
			if assert.NoError(t, err) {
				ids[i] = attempt.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	count, err := env.store.Attempt().CountByQuiz(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStartAttemptGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("unpublished quiz is not available", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) { r.IsPublished = false })
		_, err := env.attempts.Start(ctx, quiz.ID, alice)
		assert.ErrorIs(t, err, ErrQuizNotAvailable)
	})

	t.Run("window not yet open", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) {
			r.AvailableFrom = timePtr(env.clock.Now().Add(time.Hour))
		})
		_, err := env.attempts.Start(ctx, quiz.ID, alice)
		assert.ErrorIs(t, err, ErrQuizNotAvailable)

		env.clock.Advance(time.Hour)
		_, err = env.attempts.Start(ctx, quiz.ID, alice)
		assert.NoError(t, err)
	})

	t.Run("student outside the course", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)
		_, err := env.attempts.Start(ctx, quiz.ID, models.Caller{ID: "mallory", Role: models.RoleStudent})
		assert.ErrorIs(t, err, ErrNotEnrolled)

		_, err = env.attempts.Start(ctx, quiz.ID, teacher)
		assert.NoError(t, err, "staff preview skips enrollment")
	})

	t.Run("unknown quiz", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.attempts.Start(ctx, 404, alice)
		assert.ErrorIs(t, err, ErrQuizNotFound)
	})
}

func TestAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) { r.MaxAttempts = 2 })

	for i := 1; i <= 2; i++ {
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, i, attempt.AttemptNumber)
		_, err = env.attempts.Submit(ctx, attempt.ID, alice)
		require.NoError(t, err)
	}

	_, err := env.attempts.Start(ctx, quiz.ID, alice)
	assert.ErrorIs(t, err, ErrAttemptLimitReached)

	_, err = env.attempts.Start(ctx, quiz.ID, bob)
	assert.NoError(t, err, "limits are per student")
}

func TestAbandonedAttemptDoesNotCountTowardLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) { r.MaxAttempts = 1 })

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	abandoned, err := env.attempts.Abandon(ctx, attempt.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptAbandoned, abandoned.Status)
	assert.Equal(t, models.EndAbandoned, abandoned.EndReason)

	_, err = env.attempts.Abandon(ctx, attempt.ID, alice)
	assert.ErrorIs(t, err, ErrAttemptAlreadySubmitted)

	next, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	assert.NotEqual(t, attempt.ID, next.ID)
}

func TestSubmitTwiceReturnsSameResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 2), mcQuestion("q2", 3)}, nil)

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"mitochondria"`), alice)
	require.NoError(t, err)

	env.clock.Advance(90 * time.Second)
	first, err := env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, models.AttemptSubmitted, first.Status)
	assert.Equal(t, 2.0, first.TotalScore)
	assert.InDelta(t, 40.0, first.PercentageScore, 0.001)
	assert.Equal(t, 90, first.TimeSpent)
	assert.Len(t, env.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
}

func TestLateSubmitIsTimedOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) { r.TimeLimit = 10 })

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	result, err := env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptTimedOut, result.Status)
	assert.Equal(t, models.EndTimeLimit, result.EndReason)
	require.NotNil(t, result.SubmittedAt)
}

func TestRecordAnswer(t *testing.T) {
	ctx := context.Background()
	questions := []models.Question{mcQuestion("q1", 1), essayQuestion("q2", 5)}

	t.Run("upserts by question", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, questions, nil)
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"Ribosome"`), alice)
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
		updated, err := env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"Mitochondria"`), alice)
		require.NoError(t, err)

		require.Len(t, updated.Answers, 1)
		assert.JSONEq(t, `"Mitochondria"`, string(updated.Answers[0].Answer))
		assert.Equal(t, env.clock.Now(), updated.Answers[0].AnsweredAt)
	})

	t.Run("rejects foreign attempts and unknown questions", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, questions, nil)
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"Ribosome"`), bob)
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q9", json.RawMessage(`"x"`), alice)
		assert.ErrorIs(t, err, ErrQuestionNotFound)

		_, err = env.attempts.RecordAnswer(ctx, 999, "q1", json.RawMessage(`"x"`), alice)
		assert.ErrorIs(t, err, ErrAttemptNotFound)
	})

	t.Run("rejects payloads of the wrong shape", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, questions, nil)
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`{"pick":1}`), alice)
		assert.True(t, IsValidation(err))
	})

	t.Run("after submission", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, questions, nil)
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)
		_, err = env.attempts.Submit(ctx, attempt.ID, alice)
		require.NoError(t, err)

		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"Mitochondria"`), alice)
		assert.ErrorIs(t, err, ErrAttemptAlreadySubmitted)
	})

	t.Run("after the time limit closes the attempt", func(t *testing.T) {
		env := newTestEnv(t)
		quiz := env.createQuiz(t, questions, func(r *CreateQuizRequest) { r.TimeLimit = 5 })
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		env.clock.Advance(6 * time.Minute)
		_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "q1", json.RawMessage(`"Mitochondria"`), alice)
		require.ErrorIs(t, err, ErrAttemptAlreadySubmitted)

		var conflict *AttemptConflictError
		require.True(t, errors.As(err, &conflict))
		closed := conflict.Attempt.(*models.Attempt)
		assert.Equal(t, models.AttemptTimedOut, closed.Status)
	})
}

func TestManualGradingFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{essayQuestion("e1", 10), essayQuestion("e2", 5)}, nil)

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "e1", json.RawMessage(`"Water moves across a membrane"`), alice)
	require.NoError(t, err)
	_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "e2", json.RawMessage(`"Because of concentration"`), alice)
	require.NoError(t, err)

	submitted, err := env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmittedPendingGrading, submitted.Status)
	assert.Zero(t, submitted.TotalScore)
	assert.Len(t, env.publisher.EventsOfType(events.EventManualGradingRequired), 1)

	_, err = env.attempts.Grade(ctx, attempt.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e1": {Score: 8}}}, alice)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.attempts.Grade(ctx, attempt.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e1": {Score: 11}}}, teacher)
	assert.True(t, IsValidation(err))

	partial, err := env.attempts.Grade(ctx, attempt.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e1": {Score: 8}}}, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPartiallyGraded, partial.Status)
	assert.Equal(t, 8.0, partial.TotalScore)
	assert.Empty(t, env.publisher.EventsOfType(events.EventAttemptGraded))

	feedback := "Good reasoning"
	graded, err := env.attempts.Grade(ctx, attempt.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e2": {Score: 5, Feedback: &feedback}}}, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, graded.Status)
	assert.Equal(t, 13.0, graded.TotalScore)
	require.NotNil(t, graded.GradedBy)
	assert.Equal(t, teacher.ID, *graded.GradedBy)
	assert.Len(t, env.publisher.EventsOfType(events.EventAttemptGraded), 1)

	_, err = env.attempts.Grade(ctx, attempt.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e2": {Score: 1}}}, teacher)
	assert.ErrorIs(t, err, ErrAttemptNotGradable)

	analytics, err := env.analytics.Get(ctx, quiz.ID, teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.GradedCount)
	assert.Equal(t, 1, analytics.PassCount)
	assert.Zero(t, analytics.PendingGradingCount)
}

func TestCloseQuizTimesOutOpenAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)

	open, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	done, err := env.attempts.Start(ctx, quiz.ID, bob)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, done.ID, bob)
	require.NoError(t, err)

	closed, err := env.attempts.CloseQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	result, err := env.attempts.Get(ctx, open.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptTimedOut, result.Status)
	assert.Equal(t, models.EndWindowClosed, result.EndReason)

	closed, err = env.attempts.CloseQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestManualSubmitRacingCloseHasOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)
		ctx := context.Background()
		quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var submitted *models.Attempt
		wg.Add(2)
		go func() {
			defer wg.Done()
			submitted, _ = env.attempts.Submit(ctx, attempt.ID, alice)
		}()
		go func() {
			defer wg.Done()
			_, _ = env.attempts.CloseQuiz(ctx, quiz.ID)
		}()
		wg.Wait()

		stored, err := env.store.Attempt().GetByID(ctx, attempt.ID)
		require.NoError(t, err)
		require.NotNil(t, submitted)
		assert.Equal(t, stored.Status, submitted.Status, "the loser observes the winner's status")
		assert.Contains(t, []models.AttemptStatus{models.AttemptSubmitted, models.AttemptTimedOut}, stored.Status)
		assert.Equal(t, 2, stored.Version, "exactly one terminal write")
		assert.Len(t, env.publisher.EventsOfType(events.EventAttemptSubmitted), 1)
	}
}

func TestExpiredActiveAttemptIsClosedOnStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, func(r *CreateQuizRequest) {
		r.TimeLimit = 15
		r.MaxAttempts = 2
	})

	first, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	second, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, second.AttemptNumber)

	old, err := env.attempts.Get(ctx, first.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptTimedOut, old.Status)
}

func TestGetAttemptPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)
	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)

	_, err = env.attempts.Get(ctx, attempt.ID, bob)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.attempts.Get(ctx, attempt.ID, teacher)
	assert.NoError(t, err)

	list, err := env.attempts.ListByQuiz(ctx, quiz.ID, repositories.AttemptFilters{}, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSkippedEssaysAreRoutedToGrading(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{essayQuestion("e1", 10), essayQuestion("e2", 5)}, nil)

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	_, err = env.attempts.RecordAnswer(ctx, attempt.ID, "e1", json.RawMessage(`"Diffusion of water"`), alice)
	require.NoError(t, err)

	submitted, err := env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmittedPendingGrading, submitted.Status)
	assert.Equal(t, 2, submitted.PendingManualGrades())

	blank, err := env.attempts.Start(ctx, quiz.ID, bob)
	require.NoError(t, err)
	blank, err = env.attempts.Submit(ctx, blank.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmittedPendingGrading, blank.Status)
	assert.Len(t, env.publisher.EventsOfType(events.EventManualGradingRequired), 2)

	graded, err := env.attempts.Grade(ctx, blank.ID, &GradeAttemptRequest{Grades: map[string]GradeRequest{"e1": {Score: 0}, "e2": {Score: 0}}}, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, graded.Status)
}

func TestStaffCanAbandonStuckAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)
	otherTeacher := models.Caller{ID: "t2", Role: models.RoleTeacher}

	for _, staff := range []models.Caller{admin, teacher} {
		attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
		require.NoError(t, err)

		_, err = env.attempts.Abandon(ctx, attempt.ID, bob)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = env.attempts.Abandon(ctx, attempt.ID, otherTeacher)
		assert.ErrorIs(t, err, ErrForbidden)

		abandoned, err := env.attempts.Abandon(ctx, attempt.ID, staff)
		require.NoError(t, err, staff.ID)
		assert.Equal(t, models.AttemptAbandoned, abandoned.Status)
	}
}

func TestGradingIsLimitedToQuizManagers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	quiz := env.createQuiz(t, []models.Question{essayQuestion("e1", 10)}, nil)
	otherTeacher := models.Caller{ID: "t2", Role: models.RoleTeacher}

	attempt, err := env.attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	_, err = env.attempts.Submit(ctx, attempt.ID, alice)
	require.NoError(t, err)

	req := &GradeAttemptRequest{Grades: map[string]GradeRequest{"e1": {Score: 7}}}
	_, err = env.attempts.Grade(ctx, attempt.ID, req, otherTeacher)
	assert.ErrorIs(t, err, ErrForbidden)

	graded, err := env.attempts.Grade(ctx, attempt.ID, req, admin)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptSubmitted, graded.Status)
}

// cancellableRoster fails lookups once the request context is done, like a
// network-backed enrollment service would.
type cancellableRoster struct {
	*enrollment.StaticChecker
}

func (r cancellableRoster) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.StaticChecker.IsEnrolled(ctx, studentID, courseID)
}

func TestStartSurvivesCancelledWaiter(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, []models.Question{mcQuestion("q1", 1)}, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	attempts := NewAttemptService(env.store, cancellableRoster{env.roster}, env.analytics,
		notify.NewEventNotifier(env.publisher, env.clock, logger), env.clock, logger, validator.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempt, err := attempts.Start(ctx, quiz.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptInProgress, attempt.Status)
}
