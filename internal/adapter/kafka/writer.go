package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// unscored marks the risk header of a flight that was analyzed but not
// predicted.
const unscored = "UNSCORED"

// Writer produces messages to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes multiple scored flights to the sink
// topic in a single WriteMessages call. Messages are keyed by flight so
// every score for one flight lands on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, scored []domain.ScoredFlight) error {
	if len(scored) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(scored))
	for i := range scored {
		msg, err := serializeToMessage(scored[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write scored flights: %w", err)
	}
	w.logger.Debug("batch published", "size", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ScoredFlight into a Kafka message.
func serializeToMessage(s domain.ScoredFlight) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scored flight: %w", err)
	}
	risk := unscored
	if s.Prediction != nil {
		risk = string(s.Prediction.PredictionQuality)
	}
	return kafkago.Message{
		Key:   []byte(s.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_category", Value: []byte(risk)},
			{Key: "primary_reason", Value: []byte(s.Analysis.PrimaryReason)},
			{Key: "processed_at", Value: []byte(s.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
