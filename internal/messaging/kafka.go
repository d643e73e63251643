package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/pkg/models"
)

const DefaultHistoryTopic = "recommendation-history"

// HistoryEvent is the Kafka payload for one emitted recommendation.
type HistoryEvent struct {
	models.HistoryRecord
	PublishedAt time.Time `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// HistoryPublisher appends recommendation history to a Kafka topic, keyed by
// user id so one user's records stay ordered within a partition.
type HistoryPublisher struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

func NewHistoryPublisher(cfg *config.Config, logger *logrus.Logger) *HistoryPublisher {
	topic := cfg.Kafka.Topics.RecommendationHistory
	if topic == "" {
		topic = DefaultHistoryTopic
	}

	return &HistoryPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Key by user id for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		topic:  topic,
		logger: logger,
	}
}

func (p *HistoryPublisher) Name() string { return "kafka" }

// Append publishes the records as one batch.
func (p *HistoryPublisher) Append(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	messages, err := buildHistoryMessages(records, time.Now())
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write history to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":   p.topic,
		"records": len(records),
		"user_id": records[0].UserID,
	}).Debug("History published to Kafka")

	return nil
}

func (p *HistoryPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close history publisher: %w", err)
	}
	return nil
}

func buildHistoryMessages(records []models.HistoryRecord, now time.Time) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(HistoryEvent{HistoryRecord: r, PublishedAt: now})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history record: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(r.UserID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "request_id", Value: []byte(r.RequestID.String())},
				{Key: "history_id", Value: []byte(r.ID.String())},
				{Key: "timestamp", Value: []byte(r.Timestamp.Format(time.RFC3339))},
			},
		})
	}
	return messages, nil
}
