// Package source defines the provider client contract and the health-tracking
// router that selects candidates for each aggregation fan-out.
package source

import (
	"context"

	"github.com/triggerr/core/internal/app/domain/flight"
	"github.com/triggerr/core/internal/app/domain/weather"
)

// Client is the base contract every provider adapter satisfies. Priority
// orders candidate selection (higher preferred); Reliability in [0,1] is the
// prior confidence the resolver assigns to this source's values.
type Client interface {
	Name() string
	Priority() int
	Reliability() float64
	IsAvailable(ctx context.Context) bool
}

// FlightClient fetches flight status from one provider. A (nil, nil) return
// means the provider had no data for the key; both that and a non-nil error
// count as a failed attempt for routing purposes.
type FlightClient interface {
	Client
	FetchFlight(ctx context.Context, flightNumber, date string) (*flight.Canonical, error)
}

// WeatherClient fetches a weather observation from one provider.
type WeatherClient interface {
	Client
	FetchWeather(ctx context.Context, coords weather.Coordinates, date string) (*weather.Canonical, error)
}
