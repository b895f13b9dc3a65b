package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
	"github.com/couchcryptid/flight-delay-engine/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// Failed cycles back off from initialBackoff, doubling up to maxBackoff.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer scores a raw flight record. An error marks the message as
// poison: it is counted, committed, and skipped.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.ScoredFlight, error)
}

// BatchLoader writes scored flights to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, scored []domain.ScoredFlight) error
}

// Pipeline runs the extract-score-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has loaded at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run consumes, scores and loads batches until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	bo := &backoff{current: initialBackoff, limit: maxBackoff}
	for ctx.Err() == nil {
		if !p.step(ctx, bo) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// step runs one extract-score-load cycle and reports whether to continue.
func (p *Pipeline) step(ctx context.Context, bo *backoff) bool {
	start := time.Now()

	events, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return bo.wait(ctx)
	}
	if len(events) == 0 {
		return true
	}

	p.metrics.MessagesConsumed.Add(float64(len(events)))
	p.metrics.BatchSize.Observe(float64(len(events)))
	bo.reset()

	scored, pending := p.score(ctx, events)
	if len(scored) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, scored); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(scored))
		// Offsets stay uncommitted so the batch is redelivered.
		return bo.wait(ctx)
	}
	p.metrics.MessagesProduced.Add(float64(len(scored)))
	for _, ev := range pending {
		p.commit(ctx, ev)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logBatch(scored)
	return true
}

// score transforms each event. Poison events are committed immediately; the
// rest are returned alongside their scored flights for commit after loading.
func (p *Pipeline) score(ctx context.Context, events []domain.RawEvent) ([]domain.ScoredFlight, []domain.RawEvent) {
	scored := make([]domain.ScoredFlight, 0, len(events))
	pending := make([]domain.RawEvent, 0, len(events))

	for _, ev := range events {
		s, err := p.transformer.Transform(ctx, ev)
		if err != nil {
			p.logger.Warn("unreadable flight record, skipping message",
				"error", err,
				"topic", ev.Topic,
				"partition", ev.Partition,
				"offset", ev.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, ev)
			continue
		}
		scored = append(scored, s)
		pending = append(pending, ev)
	}
	return scored, pending
}

func (p *Pipeline) logBatch(scored []domain.ScoredFlight) {
	var highRisk, unscored int
	for _, s := range scored {
		switch {
		case s.Prediction == nil:
			unscored++
		case s.Prediction.PredictionQuality == domain.RiskHigh:
			highRisk++
		}
	}
	p.logger.Debug("batch scored",
		"flights", len(scored),
		"high_risk", highRisk,
		"unscored", unscored,
	)
}

func (p *Pipeline) commit(ctx context.Context, ev domain.RawEvent) {
	if ev.Commit == nil {
		return
	}
	if err := ev.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", ev.Topic, "partition", ev.Partition, "offset", ev.Offset)
	}
}

// backoff is the delay between failed cycles, doubling up to its limit.
type backoff struct {
	current time.Duration
	limit   time.Duration
}

func (b *backoff) reset() { b.current = initialBackoff }

// wait sleeps for the current delay and advances it. It returns false if ctx
// ends first.
func (b *backoff) wait(ctx context.Context) bool {
	if !retry.SleepWithContext(ctx, b.current) {
		return false
	}
	b.current = retry.NextBackoff(b.current, b.limit)
	return true
}
