package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress              AttemptStatus = "in_progress"
	AttemptSubmitted               AttemptStatus = "submitted"
	AttemptTimedOut                AttemptStatus = "timed_out"
	AttemptAbandoned               AttemptStatus = "abandoned"
	AttemptSubmittedPendingGrading AttemptStatus = "submitted_pending_grading"
	AttemptPartiallyGraded         AttemptStatus = "partially_graded"
)

var AttemptStatuses = []AttemptStatus{
	AttemptInProgress,
	AttemptSubmitted,
	AttemptTimedOut,
	AttemptAbandoned,
	AttemptSubmittedPendingGrading,
	AttemptPartiallyGraded,
}

type EndReason string

const (
	EndManual       EndReason = "manual"
	EndTimeLimit    EndReason = "time_limit"
	EndWindowClosed EndReason = "window_closed"
	EndAbandoned    EndReason = "abandoned"
)

// Answer is one recorded response inside an attempt.
type Answer struct {
	QuestionID string         `json:"question_id"`
	Answer     datatypes.JSON `json:"answer"`
	AnsweredAt time.Time      `json:"answered_at"`

	// Filled at submission
	IsCorrect          bool     `json:"is_correct"`
	PointsEarned       float64  `json:"points_earned"`
	NeedsManualGrading bool     `json:"needs_manual_grading"`
	SuggestedPoints    *float64 `json:"suggested_points,omitempty"`

	// Filled by a grader
	GradedAt *time.Time `json:"graded_at,omitempty"`
	GradedBy *string    `json:"graded_by,omitempty"`
	Feedback *string    `json:"feedback,omitempty"`
}

// PendingManualGrade reports whether a human still has to score this answer.
func (a Answer) PendingManualGrade() bool {
	return a.NeedsManualGrading && a.GradedAt == nil
}

type Attempt struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	QuizID    uint          `json:"quiz_id" gorm:"not null;index:idx_attempt_quiz_student"`
	StudentID string        `json:"student_id" gorm:"not null;size:64;index:idx_attempt_quiz_student"`
	Status    AttemptStatus `json:"status" gorm:"not null;size:32;index"`

	// 1-based position among this student's submitted attempts
	AttemptNumber int `json:"attempt" gorm:"column:attempt_number;not null"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   int        `json:"time_spent"` // seconds
	EndReason   EndReason  `json:"end_reason,omitempty" gorm:"size:32"`

	Answers []Answer `json:"answers" gorm:"type:jsonb;serializer:json"`

	// Scoring
	TotalScore      float64 `json:"total_score"`
	TotalPossible   float64 `json:"total_possible"`
	PercentageScore float64 `json:"percentage_score"`

	GradedAt *time.Time `json:"graded_at"`
	GradedBy *string    `json:"graded_by" gorm:"size:64"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Bumped on every write; guards conditional updates
	Version int `json:"version" gorm:"not null;default:1"`
}

func (a *Attempt) IsInProgress() bool {
	return a.Status == AttemptInProgress
}

// Answer returns the recorded answer for a question, if any.
func (a *Attempt) Answer(questionID string) (Answer, bool) {
	for _, answer := range a.Answers {
		if answer.QuestionID == questionID {
			return answer, true
		}
	}
	return Answer{}, false
}

// PendingManualGrades counts answers that still wait for a grader.
func (a *Attempt) PendingManualGrades() int {
	pending := 0
	for _, answer := range a.Answers {
		if answer.PendingManualGrade() {
			pending++
		}
	}
	return pending
}

// Deadline returns the instant the time limit runs out, or nil when untimed.
func (a *Attempt) Deadline(quiz *Quiz) *time.Time {
	if quiz == nil || quiz.TimeLimit <= 0 {
		return nil
	}
	deadline := a.StartedAt.Add(quiz.TimeLimitDuration())
	return &deadline
}

// Clone returns a deep copy so pure transitions never alias stored state.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.Answers != nil {
		c.Answers = make([]Answer, len(a.Answers))
		for i, answer := range a.Answers {
			answer.Answer = append(datatypes.JSON(nil), answer.Answer...)
			c.Answers[i] = answer
		}
	}
	return &c
}
