// Package router orchestrates one flight fetch plus bounded-concurrency
// weather fetches into the full data bundle required to price a policy or
// evaluate a trigger.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	flightagg "github.com/triggerr/core/internal/aggregator/flight"
	weatheragg "github.com/triggerr/core/internal/aggregator/weather"
	flightdomain "github.com/triggerr/core/internal/app/domain/flight"
	weatherdomain "github.com/triggerr/core/internal/app/domain/weather"
	"github.com/triggerr/core/pkg/logger"
)

// Request identifies the data bundle for one policy or quote.
type Request struct {
	FlightNumber string
	Date         string
	Airports     []string
	// IncludeWeather defaults to true when nil.
	IncludeWeather     *bool
	WeatherCoordinates []weatherdomain.Coordinates
}

func (r Request) includeWeather() bool {
	return r.IncludeWeather == nil || *r.IncludeWeather
}

// LocationResult is the per-location weather outcome inside the response
// metadata. A failed location never fails the bundle.
type LocationResult struct {
	Key         string
	FromCache   bool
	SourcesUsed []string
	Quality     float64
	Err         string
}

// Metadata enumerates provenance for the whole bundle.
type Metadata struct {
	FlightFromCache   bool
	FlightSourcesUsed []string
	FlightQuality     float64
	FlightConflicts   int
	Weather           []LocationResult
	ProcessingTime    time.Duration
}

// Response is the assembled policy data bundle.
type Response struct {
	Flight   flightdomain.Canonical
	Weather  []weatherdomain.Canonical
	Metadata Metadata
}

// Config bounds the router.
type Config struct {
	Timeout                      time.Duration
	MaxConcurrentWeatherRequests int
}

func (c Config) normalized() Config {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.MaxConcurrentWeatherRequests < 1 {
		c.MaxConcurrentWeatherRequests = 3
	}
	return c
}

// Router owns the cross-aggregator orchestration.
type Router struct {
	cfg     Config
	flights *flightagg.Aggregator
	weather *weatheragg.Aggregator
	log     *logger.Logger
	clock   func() time.Time
}

// New creates a data router over the two aggregators.
func New(cfg Config, flights *flightagg.Aggregator, weather *weatheragg.Aggregator, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewDefault("data-router")
	}
	return &Router{
		cfg:     cfg.normalized(),
		flights: flights,
		weather: weather,
		log:     log,
		clock:   time.Now,
	}
}

// GetDataForPolicy assembles the canonical flight and the weather observations
// for every relevant location. The flight fetch is mandatory; weather is
// optional and settles per location.
func (r *Router) GetDataForPolicy(ctx context.Context, req Request) (Response, error) {
	start := r.clock()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	flightResult, err := r.flights.GetFlightStatus(ctx, req.FlightNumber, req.Date)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("DEADLINE_EXCEEDED: policy data for %s: %w", req.FlightNumber, ctx.Err())
		}
		return Response{}, fmt.Errorf("flight data for %s on %s: %w", req.FlightNumber, req.Date, err)
	}

	resp := Response{
		Flight: flightResult.Data,
		Metadata: Metadata{
			FlightFromCache:   flightResult.FromCache,
			FlightSourcesUsed: flightResult.SourcesUsed,
			FlightQuality:     flightResult.QualityScore,
			FlightConflicts:   len(flightResult.Conflicts),
		},
	}

	if r.includeWeatherFor(req) {
		locations := r.resolveLocations(req, flightResult.Data)
		resp.Weather, resp.Metadata.Weather = r.fetchWeatherBatched(ctx, locations, req.Date)
	}

	resp.Metadata.ProcessingTime = r.clock().Sub(start)
	return resp, nil
}

func (r *Router) includeWeatherFor(req Request) bool {
	return req.includeWeather() && r.weather != nil
}

// resolveLocations picks the weather lookup points: explicit coordinates win,
// then the airport table over the requested airports, then the canonical
// flight's origin and destination.
func (r *Router) resolveLocations(req Request, canonical flightdomain.Canonical) []weatherdomain.Coordinates {
	if len(req.WeatherCoordinates) > 0 {
		return dedupeCoordinates(req.WeatherCoordinates)
	}

	airports := req.Airports
	if len(airports) == 0 {
		airports = []string{canonical.OriginIATA, canonical.DestinationIATA}
	}
	coords := make([]weatherdomain.Coordinates, 0, len(airports))
	for _, code := range airports {
		c, ok := AirportCoordinates(code)
		if !ok {
			r.log.WithField("airport", strings.ToUpper(code)).Debug("airport not in coordinate table, skipping")
			continue
		}
		coords = append(coords, c)
	}
	return dedupeCoordinates(coords)
}

func dedupeCoordinates(in []weatherdomain.Coordinates) []weatherdomain.Coordinates {
	seen := make(map[string]struct{}, len(in))
	out := make([]weatherdomain.Coordinates, 0, len(in))
	for _, c := range in {
		key := c.GridKey(4)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

type weatherOutcome struct {
	index  int
	result weatheragg.Result
	err    error
}

// fetchWeatherBatched executes weather lookups in batches bounded by the
// configured concurrency budget, with settle-all semantics.
func (r *Router) fetchWeatherBatched(ctx context.Context, locations []weatherdomain.Coordinates, date string) ([]weatherdomain.Canonical, []LocationResult) {
	observations := make([]weatherdomain.Canonical, 0, len(locations))
	meta := make([]LocationResult, len(locations))

	for batchStart := 0; batchStart < len(locations); batchStart += r.cfg.MaxConcurrentWeatherRequests {
		batchEnd := batchStart + r.cfg.MaxConcurrentWeatherRequests
		if batchEnd > len(locations) {
			batchEnd = len(locations)
		}

		results := make(chan weatherOutcome, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			go func(i int, coords weatherdomain.Coordinates) {
				res, err := r.weather.GetWeather(ctx, coords, date)
				results <- weatherOutcome{index: i, result: res, err: err}
			}(i, locations[i])
		}
		for range locations[batchStart:batchEnd] {
			out := <-results
			loc := LocationResult{Key: locations[out.index].GridKey(4)}
			if out.err != nil {
				loc.Err = out.err.Error()
				r.log.WithError(out.err).
					WithField("location", loc.Key).
					Warn("weather lookup failed")
			} else {
				loc.FromCache = out.result.FromCache
				loc.SourcesUsed = out.result.SourcesUsed
				loc.Quality = out.result.QualityScore
				observations = append(observations, out.result.Data)
			}
			meta[out.index] = loc
		}
	}
	return observations, meta
}
