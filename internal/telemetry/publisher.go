package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cardionics/heartml/internal/models"
)

// KafkaConfig configures the prediction event stream.
type KafkaConfig struct {
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// Publisher streams served predictions to Kafka for downstream monitoring.
type Publisher struct {
	logger *zap.SugaredLogger
	writer *kafka.Writer
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(logger *zap.SugaredLogger, cfg KafkaConfig) *Publisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warnw("failed to deliver prediction events", "count", len(messages), "error", err)
			}
		},
	}
	return &Publisher{logger: logger, writer: writer}
}

// PublishPrediction emits one prediction event keyed by model name. Writes are
// async; delivery failures surface in the completion callback only.
func (p *Publisher) PublishPrediction(ctx context.Context, result *models.PredictionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode prediction event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(result.ModelName),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to queue prediction event: %w", err)
	}
	return nil
}

// Close flushes pending events.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
