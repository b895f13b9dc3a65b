package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/flight-delay-engine/internal/domain"
)

// FanOut loads every batch into each destination in order. All destinations
// are attempted; their errors are joined. A failed batch is retried as a
// whole, so destinations must tolerate seeing a batch twice.
type FanOut []BatchLoader

func (f FanOut) LoadBatch(ctx context.Context, scored []domain.ScoredFlight) error {
	var errs []error
	for _, l := range f {
		if err := l.LoadBatch(ctx, scored); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
