// Package flight implements the flight status aggregator: cache check,
// bounded fan-out across providers, conflict resolution, cache write.
package flight

import (
	"context"
	"fmt"

	"github.com/triggerr/core/internal/aggregator"
	"github.com/triggerr/core/internal/aggregator/cache"
	"github.com/triggerr/core/internal/aggregator/resolve"
	"github.com/triggerr/core/internal/aggregator/source"
	domain "github.com/triggerr/core/internal/app/domain/flight"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

// Result is the aggregation outcome for one flight key.
type Result = aggregator.Result[domain.Canonical]

// Aggregator answers getFlightStatus over a set of provider clients.
type Aggregator struct {
	pipeline *aggregator.Pipeline[domain.Canonical, source.FlightClient]
	resolve  resolve.Options
	log      *logger.Logger
}

// Config bounds the flight aggregator.
type Config struct {
	Pipeline aggregator.Config
	Resolve  resolve.Options
}

// New creates a flight aggregator owning its cache and health table.
func New(cfg Config, store cache.Store, clients []source.FlightClient, log *logger.Logger, m *metrics.Metrics) *Aggregator {
	if log == nil {
		log = logger.NewDefault("flight-aggregator")
	}
	if cfg.Pipeline.Domain == "" {
		cfg.Pipeline.Domain = "flight"
	}
	if cfg.Resolve.NTarget == 0 {
		cfg.Resolve = resolve.DefaultOptions()
	}
	router := source.NewRouter(clients, log)
	return &Aggregator{
		pipeline: aggregator.New[domain.Canonical](cfg.Pipeline, store, router, log, m),
		resolve:  cfg.Resolve,
		log:      log,
	}
}

// Router exposes the health table for probes and tests.
func (a *Aggregator) Router() *source.Router[source.FlightClient] { return a.pipeline.Router() }

// GetFlightStatus aggregates the canonical status for one flight on one date
// (YYYY-MM-DD).
func (a *Aggregator) GetFlightStatus(ctx context.Context, flightNumber, date string) (Result, error) {
	number, day, err := domain.Key(flightNumber, date)
	if err != nil {
		return Result{}, fmt.Errorf("flight key: %w", err)
	}
	key := cache.Key("flight", number, day)

	return a.pipeline.Run(ctx, key,
		func(ctx context.Context, client source.FlightClient) (*domain.Canonical, error) {
			return client.FetchFlight(ctx, number, day)
		},
		func(inputs []resolve.Input[domain.Canonical]) (resolve.Outcome[domain.Canonical], error) {
			return resolve.Flights(inputs, a.resolve)
		},
		func(record domain.Canonical) error {
			return record.Validate()
		},
	)
}
