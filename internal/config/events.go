package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/quiz-engine/internal/events"
)

const (
	PublisherKafka = "kafka"
	PublisherMock  = "mock"
)

// EventConfig selects where quiz notifications (opened, closed, graded, ...)
// are published.
type EventConfig struct {
	Enabled           bool
	Publisher         string
	KafkaBrokers      string
	NotificationTopic string
	ClientID          string
	MaxRetries        int
}

// GetKafkaBrokers splits the comma separated broker list, dropping blanks.
func (c *EventConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// CreateEventPublisher builds the publisher used by the notifier. Disabled or
// unknown publishers fall back to the in-memory mock so state transitions never
// depend on a broker being configured.
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Quiz notifications disabled, using mock publisher")
		return events.NewMockEventPublisher(logger), nil
	}

	switch c.Publisher {
	case PublisherKafka:
		brokers := c.GetKafkaBrokers()
		if len(brokers) == 0 {
			return nil, errors.New("EVENT_PUBLISHER=kafka requires KAFKA_BROKERS")
		}
		logger.Info("Publishing quiz notifications to Kafka",
			"brokers", brokers,
			"topic", c.NotificationTopic,
			"client_id", c.ClientID)

		return events.NewKafkaEventPublisher(events.PublisherConfig{
			KafkaBrokers: brokers,
			TopicName:    c.NotificationTopic,
			ClientID:     c.ClientID,
			MaxRetries:   c.MaxRetries,
			Logger:       logger,
		})
	case PublisherMock:
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher, falling back to mock", "publisher", c.Publisher)
		return events.NewMockEventPublisher(logger), nil
	}
}
