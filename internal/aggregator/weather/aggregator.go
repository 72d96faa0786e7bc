// Package weather implements the weather observation aggregator. The pipeline
// mirrors the flight aggregator over a separate cache and health table, keyed
// by grid-rounded coordinates.
package weather

import (
	"context"
	"fmt"

	"github.com/triggerr/core/internal/aggregator"
	"github.com/triggerr/core/internal/aggregator/cache"
	"github.com/triggerr/core/internal/aggregator/resolve"
	"github.com/triggerr/core/internal/aggregator/source"
	domain "github.com/triggerr/core/internal/app/domain/weather"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

// Result is the aggregation outcome for one location key.
type Result = aggregator.Result[domain.Canonical]

// Aggregator answers getWeather over a set of provider clients.
type Aggregator struct {
	pipeline     *aggregator.Pipeline[domain.Canonical, source.WeatherClient]
	resolve      resolve.Options
	gridDecimals int
	log          *logger.Logger
}

// Config bounds the weather aggregator.
type Config struct {
	Pipeline     aggregator.Config
	Resolve      resolve.Options
	GridDecimals int
}

// New creates a weather aggregator owning its cache and health table.
func New(cfg Config, store cache.Store, clients []source.WeatherClient, log *logger.Logger, m *metrics.Metrics) *Aggregator {
	if log == nil {
		log = logger.NewDefault("weather-aggregator")
	}
	if cfg.Pipeline.Domain == "" {
		cfg.Pipeline.Domain = "weather"
	}
	if cfg.Resolve.NTarget == 0 {
		cfg.Resolve = resolve.DefaultOptions()
	}
	if cfg.GridDecimals <= 0 {
		cfg.GridDecimals = 4
	}
	router := source.NewRouter(clients, log)
	return &Aggregator{
		pipeline:     aggregator.New[domain.Canonical](cfg.Pipeline, store, router, log, m),
		resolve:      cfg.Resolve,
		gridDecimals: cfg.GridDecimals,
		log:          log,
	}
}

// Router exposes the health table for probes and tests.
func (a *Aggregator) Router() *source.Router[source.WeatherClient] { return a.pipeline.Router() }

// GetWeather aggregates the canonical observation for one location; date is
// optional (YYYY-MM-DD) and widens the cache key when supplied.
func (a *Aggregator) GetWeather(ctx context.Context, coords domain.Coordinates, date string) (Result, error) {
	if err := coords.Validate(); err != nil {
		return Result{}, fmt.Errorf("weather key: %w", err)
	}
	key := cache.Key("weather", coords.GridKey(a.gridDecimals), date)

	return a.pipeline.Run(ctx, key,
		func(ctx context.Context, client source.WeatherClient) (*domain.Canonical, error) {
			return client.FetchWeather(ctx, coords, date)
		},
		func(inputs []resolve.Input[domain.Canonical]) (resolve.Outcome[domain.Canonical], error) {
			return resolve.Weather(inputs, a.resolve)
		},
		func(record domain.Canonical) error {
			return record.Validate()
		},
	)
}
