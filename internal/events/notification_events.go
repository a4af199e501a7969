package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

// EventType represents different types of notification events
type EventType string

const (
	// Quiz window events
	EventQuizOpened EventType = "quiz.opened"
	EventQuizClosed EventType = "quiz.closed"

	// Attempt events
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptGraded    EventType = "attempt.graded"

	// Grading events
	EventManualGradingRequired EventType = "grading.manual_required"
)

const (
	eventSource  = "quiz-engine"
	eventVersion = "1.0"
)

// NotificationEvent is the base event structure for all notification events
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// QuizNotification is the payload shared by every quiz engine event.
type QuizNotification struct {
	QuizID    uint                    `json:"quiz_id"`
	Kind      models.NotificationKind `json:"kind"`
	Audience  models.Audience         `json:"audience"`
	AttemptID *uint                   `json:"attempt_id,omitempty"`
}

// EventTypeFor maps an engine notification kind onto its wire event type.
func EventTypeFor(kind models.NotificationKind) EventType {
	switch kind {
	case models.NotificationQuizOpened:
		return EventQuizOpened
	case models.NotificationQuizClosed:
		return EventQuizClosed
	case models.NotificationAttemptSubmit:
		return EventAttemptSubmitted
	case models.NotificationAttemptGraded:
		return EventAttemptGraded
	case models.NotificationGradingRequired:
		return EventManualGradingRequired
	default:
		return EventType("quiz." + string(kind))
	}
}

func NewQuizNotificationEvent(payload QuizNotification, occurredAt time.Time) *NotificationEvent {
	return &NotificationEvent{
		ID:        GenerateEventID(),
		Type:      EventTypeFor(payload.Kind),
		Timestamp: occurredAt,
		Source:    eventSource,
		Version:   eventVersion,
		Data:      payload,
		Metadata: map[string]interface{}{
			"quiz_id":   payload.QuizID,
			"course_id": payload.Audience.CourseID,
		},
	}
}

func GenerateEventID() string {
	return uuid.NewString()
}
