package source

import (
	"context"
	"testing"

	"github.com/triggerr/core/internal/app/domain/weather"
)

func TestFlightFixtureDeterministic(t *testing.T) {
	f := NewFlightFixture("fixture-a", 10, 0.9, 0)
	ctx := context.Background()

	first, err := f.FetchFlight(ctx, "UA456", "2025-12-15")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := f.FetchFlight(ctx, "UA456", "2025-12-15")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first.Status != second.Status || !first.ScheduledDeparture.Equal(second.ScheduledDeparture) {
		t.Fatalf("fixture must be deterministic: %#v vs %#v", first, second)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("fixture record must validate: %v", err)
	}
	if first.OriginIATA == first.DestinationIATA {
		t.Fatalf("fixture must not produce a self-loop route")
	}
}

func TestFlightFixtureRejectsBadDate(t *testing.T) {
	f := NewFlightFixture("fixture-a", 10, 0.9, 0)
	if _, err := f.FetchFlight(context.Background(), "UA456", "not-a-date"); err == nil {
		t.Fatalf("bad date must fail")
	}
}

func TestWeatherFixtureDeterministicAndValid(t *testing.T) {
	f := NewWeatherFixture("fixture-w", 10, 0.9, 0)
	ctx := context.Background()
	coords := weather.Coordinates{Lat: 40.6413, Lon: -73.7781}

	first, err := f.FetchWeather(ctx, coords, "2025-12-15")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := f.FetchWeather(ctx, coords, "2025-12-15")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first.Condition != second.Condition || first.TemperatureCelsius != second.TemperatureCelsius {
		t.Fatalf("fixture must be deterministic")
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("fixture observation must validate: %v", err)
	}
}
