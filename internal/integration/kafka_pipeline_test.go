//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/adapter/kafka"
	"github.com/couchcryptid/flight-delay-engine/internal/adapter/sqlite"
	"github.com/couchcryptid/flight-delay-engine/internal/config"
	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	"github.com/couchcryptid/flight-delay-engine/internal/pipeline"
	"github.com/couchcryptid/flight-delay-engine/internal/synth"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-flight-records"
	testSinkTopic   = "test-flight-scores"
)

// scoredMessage holds a deserialized message read from the sink topic.
type scoredMessage struct {
	Scored  domain.ScoredFlight
	Key     string
	Headers map[string]string
}

// readScored reads a single message from the sink consumer and deserializes it.
func readScored(ctx context.Context, t *testing.T, consumer *kafkago.Reader) scoredMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var scored domain.ScoredFlight
	require.NoError(t, json.Unmarshal(msg.Value, &scored), "unmarshal sink message")

	return scoredMessage{Scored: scored, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies that kafka.Reader and kafka.Writer round-trip
// a flight through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	flight := synth.New(5).Flights(1)[0]
	payload, err := json.Marshal(flight)
	require.NoError(t, err)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(flight.FlightNumber),
		Value: payload,
	}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte(flight.FlightNumber), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	metrics := observability.NewMetricsForTesting()
	scorer := pipeline.NewTransformer(trainedHolder(ctx, t), metrics, discardLogger())
	scored, err := scorer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.ScoredFlight{scored}))

	sm := readScored(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, scored.Key(), sm.Key)
	require.NotNil(t, sm.Scored.Prediction)
	assert.Equal(t, string(sm.Scored.Prediction.PredictionQuality), sm.Headers["risk_category"])
	assert.Equal(t, string(sm.Scored.Analysis.PrimaryReason), sm.Headers["primary_reason"])
	_, err = time.Parse(time.RFC3339, sm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")
	assert.Equal(t, flight.FlightNumber, sm.Scored.Flight.FlightNumber)
}

// TestPipelineEndToEnd wires Reader, FlightScorer, and a fan-out to Kafka and
// SQLite, and verifies every published flight is scored in both sinks.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	flights := synth.New(77).Flights(120)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(flights))
	for _, f := range flights {
		payload, err := json.Marshal(f)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(f.FlightNumber), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "flights.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	scorer := pipeline.NewTransformer(trainedHolder(ctx, t), metrics, discardLogger())
	p := pipeline.New(reader, scorer, pipeline.FanOut{repo, writer}, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make([]scoredMessage, 0, len(flights))
	for len(received) < len(flights) {
		received = append(received, readScored(ctx, t, consumer))
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	for _, sm := range received {
		require.NotNil(t, sm.Scored.Prediction, "flight %s", sm.Key)
		assert.Equal(t, domain.CategorizeRisk(sm.Scored.Prediction.PredictedDelayMinutes), sm.Scored.Prediction.PredictionQuality)
		assert.Equal(t, sm.Scored.Key(), sm.Key)
		assert.NotEmpty(t, sm.Headers["primary_reason"])
	}

	// The last score per flight is stored too.
	last := received[len(received)-1].Scored
	row, err := repo.LatestScore(ctx, last.Flight.FlightNumber)
	require.NoError(t, err)
	assert.Equal(t, last.Flight.FlightNumber, row.FlightNumber)
	assert.Equal(t, last.BundleID, row.BundleID)
}

// TestPipelinePoisonMessage verifies that an unparseable message is skipped
// and the pipeline keeps processing valid messages.
func TestPipelinePoisonMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	flight := synth.New(9).Flights(1)[0]
	validPayload, err := json.Marshal(flight)
	require.NoError(t, err)

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: validPayload},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	scorer := pipeline.NewTransformer(trainedHolder(ctx, t), metrics, discardLogger())
	p := pipeline.New(reader, scorer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	sm := readScored(ctx, t, consumer)
	assert.Equal(t, flight.FlightNumber, sm.Scored.Flight.FlightNumber)

	// No second message arrives: the poison pill was skipped.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
