// Package automatch runs the background matcher that picks up pending
// requests nothing has claimed and assigns them the best-scoring
// resource.
package automatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/matching"
	"github.com/reliefline/reliefline/internal/notify"
)

// Scheduler sweeps the pending backlog on an interval. Requests younger
// than the grace period are left alone so a live USSD session can still
// finish them.
type Scheduler struct {
	requests  *sqlite.RequestStore
	resources *sqlite.ResourceStore
	engine    *matching.Engine
	notifier  notify.Notifier
	grace     time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	matched   metric.Int64Counter
	unmatched metric.Int64Counter
}

// NewScheduler creates a backlog matcher.
func NewScheduler(
	requests *sqlite.RequestStore,
	resources *sqlite.ResourceStore,
	engine *matching.Engine,
	notifier notify.Notifier,
	grace, interval time.Duration,
	logger zerolog.Logger,
) *Scheduler {
	meter := otel.Meter("reliefline/automatch")
	matched, _ := meter.Int64Counter("automatch.matched")
	unmatched, _ := meter.Int64Counter("automatch.unmatched")

	return &Scheduler{
		requests:  requests,
		resources: resources,
		engine:    engine,
		notifier:  notifier,
		grace:     grace,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		matched:   matched,
		unmatched: unmatched,
	}
}

// Summary reports the outcome of one sweep.
type Summary struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Failed    int `json:"failed"`
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("auto-match sweep failed")
			}
		}
	}
}

// RunOnce processes the current backlog a single time. A request that
// finds no candidate, or loses the capacity race, stays pending for the
// next sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	cutoff := s.now().Add(-s.grace)
	pending, err := s.requests.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, req := range pending {
		sum.Processed++

		best, err := s.engine.BestMatch(ctx, req)
		if err != nil {
			s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("match candidates")
			sum.Failed++
			continue
		}
		if best == nil {
			s.unmatched.Add(ctx, 1)
			sum.Failed++
			continue
		}

		reserved, err := s.resources.TryReserve(ctx, best.Resource.ID, req.Quantity)
		if err != nil {
			s.logger.Error().Err(err).Int64("request_id", req.ID).Msg("reserve capacity")
			sum.Failed++
			continue
		}
		if !reserved {
			// Lost the race; the next sweep sees fresh capacity numbers.
			sum.Failed++
			continue
		}

		now := s.now()
		cost := best.Resource.PricePerUnit * float64(req.Quantity)
		if err := s.requests.MarkMatched(ctx, req.ID, best.Resource.ID, cost, now); err != nil {
			// The request left pending state under us. Hand the unit back.
			if relErr := s.resources.Release(ctx, best.Resource.ID, req.Quantity); relErr != nil {
				s.logger.Error().Err(relErr).Int64("resource_id", best.Resource.ID).Msg("release after failed mark")
			}
			s.logger.Warn().Err(err).Int64("request_id", req.ID).Msg("request no longer pending")
			sum.Failed++
			continue
		}

		s.matched.Add(ctx, 1)
		sum.Matched++
		s.logger.Info().
			Int64("request_id", req.ID).
			Str("reference", req.ReferenceNumber).
			Int64("resource_id", best.Resource.ID).
			Msg("auto-matched")

		if best.Resource.ContactPhone.Valid {
			notify.Dispatch(s.notifier, notify.Event{
				Type:         notify.EventProviderAlert,
				Destination:  best.Resource.ContactPhone.String,
				Reference:    req.ReferenceNumber,
				ResourceType: req.Type.Title(),
				Location:     req.Location,
				CreatedAt:    req.CreatedAt,
			})
		}
	}

	if sum.Processed > 0 {
		s.logger.Info().
			Int("processed", sum.Processed).
			Int("matched", sum.Matched).
			Int("failed", sum.Failed).
			Msg("auto-match sweep complete")
	}
	return sum, nil
}
