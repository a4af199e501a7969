package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/scoring"
)

var (
	ErrNotInProgress   = errors.New("attempt is not in progress")
	ErrTimeExpired     = errors.New("attempt time limit has expired")
	ErrUnknownQuestion = errors.New("question does not belong to this quiz")
	ErrNotGradable     = errors.New("attempt is not awaiting manual grading")
	ErrNotFlagged      = errors.New("answer is not flagged for manual grading")
	ErrInvalidGrade    = errors.New("invalid grade")
)

type EventKind string

const (
	EventAnswer  EventKind = "answer"
	EventSubmit  EventKind = "submit"
	EventTimeout EventKind = "timeout"
	EventGrade   EventKind = "grade"
	EventAbandon EventKind = "abandon"
)

type Grade struct {
	Points   float64
	Feedback *string
}

type Event struct {
	Kind       EventKind
	QuestionID string
	Answer     []byte
	Grades     map[string]Grade
	GraderID   string
}

func AnswerEvent(questionID string, payload []byte) Event {
	return Event{Kind: EventAnswer, QuestionID: questionID, Answer: payload}
}

func SubmitEvent() Event {
	return Event{Kind: EventSubmit}
}

// TimeoutEvent forces a submission with timeout semantics, as when the
// availability window closes on an open attempt.
func TimeoutEvent() Event {
	return Event{Kind: EventTimeout}
}

func GradeEvent(graderID string, grades map[string]Grade) Event {
	return Event{Kind: EventGrade, GraderID: graderID, Grades: grades}
}

func AbandonEvent() Event {
	return Event{Kind: EventAbandon}
}

type EffectKind string

const (
	EffectRecomputeAnalytics EffectKind = "recompute_analytics"
	EffectNotify             EffectKind = "notify"
)

// Effect is a side effect the caller performs after persisting the
// transition.
type Effect struct {
	Kind         EffectKind
	Notification models.NotificationKind
	Audience     models.Audience
}

// Expired reports whether the attempt's time limit has run out at now.
// The deadline instant itself counts as expired.
func Expired(quiz *models.Quiz, attempt *models.Attempt, now time.Time) bool {
	deadline := attempt.Deadline(quiz)
	return deadline != nil && !now.Before(*deadline)
}

// Apply computes the next state of an attempt. It never mutates its input.
// A submit or timeout on an attempt that is no longer in progress returns
// the attempt unchanged with no effects.
func Apply(quiz *models.Quiz, attempt *models.Attempt, event Event, now time.Time) (*models.Attempt, []Effect, error) {
	switch event.Kind {
	case EventAnswer:
		return recordAnswer(quiz, attempt, event, now)
	case EventSubmit, EventTimeout:
		return submit(quiz, attempt, event.Kind == EventTimeout, now)
	case EventGrade:
		return grade(quiz, attempt, event, now)
	case EventAbandon:
		return abandon(attempt, now)
	default:
		return nil, nil, fmt.Errorf("unsupported attempt event %q", event.Kind)
	}
}

func recordAnswer(quiz *models.Quiz, attempt *models.Attempt, event Event, now time.Time) (*models.Attempt, []Effect, error) {
	if !attempt.IsInProgress() {
		return nil, nil, ErrNotInProgress
	}
	if Expired(quiz, attempt, now) {
		return nil, nil, ErrTimeExpired
	}
	if _, ok := quiz.Question(event.QuestionID); !ok {
		return nil, nil, ErrUnknownQuestion
	}

	next := attempt.Clone()
	entry := models.Answer{
		QuestionID: event.QuestionID,
		Answer:     datatypes.JSON(append([]byte(nil), event.Answer...)),
		AnsweredAt: now,
	}
	for i, existing := range next.Answers {
		if existing.QuestionID == event.QuestionID {
			next.Answers[i] = entry
			return next, nil, nil
		}
	}
	next.Answers = append(next.Answers, entry)
	return next, nil, nil
}

func submit(quiz *models.Quiz, attempt *models.Attempt, windowClosed bool, now time.Time) (*models.Attempt, []Effect, error) {
	if !attempt.IsInProgress() {
		return attempt.Clone(), nil, nil
	}

	next := attempt.Clone()
	submittedAt := now
	next.SubmittedAt = &submittedAt
	next.TimeSpent = elapsedSeconds(attempt.StartedAt, now)

	overLimit := Expired(quiz, attempt, now)
	switch {
	case overLimit:
		next.EndReason = models.EndTimeLimit
	case windowClosed:
		next.EndReason = models.EndWindowClosed
	default:
		next.EndReason = models.EndManual
	}

	policy := scoring.PolicyFor(quiz)
	for i := range next.Answers {
		answer := &next.Answers[i]
		question, ok := quiz.Question(answer.QuestionID)
		if !ok {
			answer.IsCorrect, answer.PointsEarned, answer.NeedsManualGrading = false, 0, false
			continue
		}
		result := scoring.Score(question, answer.Answer, policy)
		answer.IsCorrect = result.IsCorrect
		answer.PointsEarned = result.PointsEarned
		answer.NeedsManualGrading = result.NeedsManualGrading
		answer.SuggestedPoints = result.SuggestedPoints
		answer.GradedAt, answer.GradedBy, answer.Feedback = nil, nil, nil
	}

	// Manual questions left blank still wait for a grader.
	manual := 0
	for _, question := range quiz.Questions {
		if !scoring.RequiresManualGrading(question, policy) {
			continue
		}
		manual++
		if answerIndex(next, question.ID) < 0 {
			next.Answers = append(next.Answers, models.Answer{
				QuestionID:         question.ID,
				NeedsManualGrading: true,
			})
		}
	}
	recomputeTotals(quiz, next)

	autoScored := len(quiz.Questions) - manual
	switch {
	case overLimit || windowClosed:
		next.Status = models.AttemptTimedOut
	case manual > 0 && autoScored == 0:
		next.Status = models.AttemptSubmittedPendingGrading
	case manual > 0:
		next.Status = models.AttemptPartiallyGraded
	default:
		next.Status = models.AttemptSubmitted
	}

	effects := []Effect{
		{Kind: EffectRecomputeAnalytics},
		{Kind: EffectNotify, Notification: models.NotificationAttemptSubmit, Audience: models.StudentAudience(quiz.CourseID, attempt.StudentID)},
	}
	if manual > 0 {
		effects = append(effects, Effect{Kind: EffectNotify, Notification: models.NotificationGradingRequired, Audience: models.StaffAudience(quiz.CourseID)})
	}
	return next, effects, nil
}

func grade(quiz *models.Quiz, attempt *models.Attempt, event Event, now time.Time) (*models.Attempt, []Effect, error) {
	switch attempt.Status {
	case models.AttemptSubmittedPendingGrading, models.AttemptPartiallyGraded:
	case models.AttemptTimedOut:
		if attempt.PendingManualGrades() == 0 {
			return nil, nil, ErrNotGradable
		}
	default:
		return nil, nil, ErrNotGradable
	}
	if len(event.Grades) == 0 {
		return nil, nil, fmt.Errorf("%w: no grades supplied", ErrInvalidGrade)
	}

	next := attempt.Clone()
	for questionID, g := range event.Grades {
		question, ok := quiz.Question(questionID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
		}
		idx := answerIndex(next, questionID)
		if idx < 0 || !next.Answers[idx].NeedsManualGrading {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFlagged, questionID)
		}
		if g.Points < 0 || g.Points > question.Points {
			return nil, nil, fmt.Errorf("%w: %s score must be between 0 and %g", ErrInvalidGrade, questionID, question.Points)
		}

		grader := event.GraderID
		gradedAt := now
		answer := &next.Answers[idx]
		answer.PointsEarned = g.Points
		answer.IsCorrect = g.Points >= question.Points
		answer.GradedAt = &gradedAt
		answer.GradedBy = &grader
		answer.Feedback = g.Feedback
	}
	recomputeTotals(quiz, next)

	effects := []Effect{{Kind: EffectRecomputeAnalytics}}
	if next.PendingManualGrades() > 0 {
		if next.Status != models.AttemptTimedOut {
			next.Status = models.AttemptPartiallyGraded
		}
		return next, effects, nil
	}

	grader := event.GraderID
	gradedAt := now
	next.GradedAt = &gradedAt
	next.GradedBy = &grader
	if next.Status != models.AttemptTimedOut {
		next.Status = models.AttemptSubmitted
	}
	effects = append(effects, Effect{
		Kind:         EffectNotify,
		Notification: models.NotificationAttemptGraded,
		Audience:     models.StudentAudience(quiz.CourseID, attempt.StudentID),
	})
	return next, effects, nil
}

func abandon(attempt *models.Attempt, now time.Time) (*models.Attempt, []Effect, error) {
	if !attempt.IsInProgress() {
		return nil, nil, ErrNotInProgress
	}
	next := attempt.Clone()
	next.Status = models.AttemptAbandoned
	next.EndReason = models.EndAbandoned
	next.TimeSpent = elapsedSeconds(attempt.StartedAt, now)
	return next, []Effect{{Kind: EffectRecomputeAnalytics}}, nil
}

func recomputeTotals(quiz *models.Quiz, attempt *models.Attempt) {
	var total float64
	for _, answer := range attempt.Answers {
		total += answer.PointsEarned
	}
	attempt.TotalScore = total
	attempt.TotalPossible = quiz.TotalPoints()
	if attempt.TotalPossible > 0 {
		attempt.PercentageScore = total / attempt.TotalPossible * 100
	} else {
		attempt.PercentageScore = 0
	}
}

func answerIndex(attempt *models.Attempt, questionID string) int {
	for i, answer := range attempt.Answers {
		if answer.QuestionID == questionID {
			return i
		}
	}
	return -1
}

func elapsedSeconds(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Second)
}
