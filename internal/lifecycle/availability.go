// Package lifecycle holds the pure rules of quiz availability and the
// attempt state machine. Callers own persistence and side effects.
package lifecycle

import (
	"time"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

// IsAvailable reports whether a quiz can be started at now. The window is
// inclusive on both ends. An unpublished quiz is never available.
func IsAvailable(quiz *models.Quiz, now time.Time) bool {
	if quiz == nil || !quiz.IsPublished {
		return false
	}
	if quiz.AvailableFrom != nil && now.Before(*quiz.AvailableFrom) {
		return false
	}
	if quiz.AvailableUntil != nil && now.After(*quiz.AvailableUntil) {
		return false
	}
	return true
}

type AvailabilityState string

const (
	StateUnpublished AvailabilityState = "unpublished"
	StateUpcoming    AvailabilityState = "upcoming"
	StateOpen        AvailabilityState = "open"
	StateClosed      AvailabilityState = "closed"
)

type Availability struct {
	QuizID    uint              `json:"quiz_id"`
	State     AvailabilityState `json:"state"`
	Available bool              `json:"available"`
	OpensAt   *time.Time        `json:"opens_at,omitempty"`
	ClosesAt  *time.Time        `json:"closes_at,omitempty"`
	DueDate   *time.Time        `json:"due_date,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Describe explains the availability decision for read paths.
func Describe(quiz *models.Quiz, now time.Time) Availability {
	a := Availability{
		QuizID:    quiz.ID,
		OpensAt:   quiz.AvailableFrom,
		ClosesAt:  quiz.AvailableUntil,
		DueDate:   quiz.DueDate,
		CheckedAt: now,
		Available: IsAvailable(quiz, now),
	}
	switch {
	case !quiz.IsPublished:
		a.State = StateUnpublished
	case quiz.AvailableFrom != nil && now.Before(*quiz.AvailableFrom):
		a.State = StateUpcoming
	case quiz.AvailableUntil != nil && now.After(*quiz.AvailableUntil):
		a.State = StateClosed
	default:
		a.State = StateOpen
	}
	return a
}

// ValidateWindow enforces availableFrom < availableUntil when both are set.
func ValidateWindow(s models.Schedule) bool {
	if s.AvailableFrom == nil || s.AvailableUntil == nil {
		return true
	}
	return s.AvailableFrom.Before(*s.AvailableUntil)
}
