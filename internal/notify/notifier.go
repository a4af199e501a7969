// Package notify adapts engine notifications onto the event bus.
package notify

import (
	"context"
	"log/slog"

	"github.com/SAP-F-2025/quiz-engine/internal/clock"
	"github.com/SAP-F-2025/quiz-engine/internal/events"
	"github.com/SAP-F-2025/quiz-engine/internal/models"
)

// Notifier is fire-and-forget: it never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, quizID uint, audience models.Audience)
}

// AttemptNotifier can also reference the attempt that caused a notification.
type AttemptNotifier interface {
	Notifier
	NotifyAttempt(ctx context.Context, kind models.NotificationKind, quizID, attemptID uint, audience models.Audience)
}

type EventNotifier struct {
	publisher events.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
}

func NewEventNotifier(publisher events.EventPublisher, clk clock.Clock, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{
		publisher: publisher,
		clock:     clk,
		logger:    logger,
	}
}

func (n *EventNotifier) Notify(ctx context.Context, kind models.NotificationKind, quizID uint, audience models.Audience) {
	n.publish(ctx, events.QuizNotification{QuizID: quizID, Kind: kind, Audience: audience})
}

func (n *EventNotifier) NotifyAttempt(ctx context.Context, kind models.NotificationKind, quizID, attemptID uint, audience models.Audience) {
	n.publish(ctx, events.QuizNotification{QuizID: quizID, Kind: kind, Audience: audience, AttemptID: &attemptID})
}

func (n *EventNotifier) publish(ctx context.Context, payload events.QuizNotification) {
	event := events.NewQuizNotificationEvent(payload, n.clock.Now())
	if err := n.publisher.PublishNotificationEvent(ctx, event); err != nil {
		n.logger.Warn("Failed to publish notification",
			"event_id", event.ID,
			"kind", payload.Kind,
			"quiz_id", payload.QuizID,
			"error", err)
	}
}
