package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triggerr/core/internal/aggregator"
	"github.com/triggerr/core/internal/aggregator/cache"
	"github.com/triggerr/core/internal/aggregator/source"
	domain "github.com/triggerr/core/internal/app/domain/weather"
)

type mockWeatherClient struct {
	name        string
	priority    int
	reliability float64
	record      *domain.Canonical
	err         error
	calls       int
}

func (m *mockWeatherClient) Name() string                       { return m.name }
func (m *mockWeatherClient) Priority() int                      { return m.priority }
func (m *mockWeatherClient) Reliability() float64               { return m.reliability }
func (m *mockWeatherClient) IsAvailable(_ context.Context) bool { return true }

func (m *mockWeatherClient) FetchWeather(_ context.Context, coords domain.Coordinates, _ string) (*domain.Canonical, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.record == nil {
		return nil, nil
	}
	rec := *m.record
	rec.Coordinates = coords
	return &rec, nil
}

func clearObservation() *domain.Canonical {
	return &domain.Canonical{
		ObservationTimestamp:     time.Now().UTC(),
		TemperatureCelsius:       18,
		WindSpeedKmh:             12,
		PrecipitationProbability: 0.1,
		Condition:                domain.ConditionClear,
	}
}

func newTestAggregator(ttl time.Duration, clients ...source.WeatherClient) *Aggregator {
	return New(Config{
		Pipeline: aggregator.Config{
			MaxSources:       3,
			PerSourceTimeout: time.Second,
			Timeout:          5 * time.Second,
			MinQualityScore:  0.3,
		},
		GridDecimals: 4,
	}, cache.NewMemory(ttl), clients, nil, nil)
}

func TestGetWeatherAggregatesAndCaches(t *testing.T) {
	client := &mockWeatherClient{name: "mock-w", priority: 10, reliability: 0.9, record: clearObservation()}
	agg := newTestAggregator(time.Minute, client)
	coords := domain.Coordinates{Lat: 40.6413, Lon: -73.7781}

	first, err := agg.GetWeather(context.Background(), coords, "2025-12-15")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.FromCache || len(first.SourcesUsed) != 1 {
		t.Fatalf("unexpected first result: %#v", first)
	}

	second, err := agg.GetWeather(context.Background(), coords, "2025-12-15")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second call must hit the cache")
	}
	if client.calls != 1 {
		t.Fatalf("expected one upstream fetch, got %d", client.calls)
	}
}

func TestGetWeatherGridRoundingSharesCacheEntry(t *testing.T) {
	client := &mockWeatherClient{name: "mock-w", priority: 10, reliability: 0.9, record: clearObservation()}
	agg := newTestAggregator(time.Minute, client)

	if _, err := agg.GetWeather(context.Background(), domain.Coordinates{Lat: 40.64131, Lon: -73.77809}, ""); err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := agg.GetWeather(context.Background(), domain.Coordinates{Lat: 40.64133, Lon: -73.77811}, "")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("near-identical coordinates must share one grid cell")
	}
}

func TestGetWeatherRejectsInvalidCoordinates(t *testing.T) {
	agg := newTestAggregator(time.Minute, &mockWeatherClient{name: "w", priority: 1, reliability: 0.9, record: clearObservation()})
	if _, err := agg.GetWeather(context.Background(), domain.Coordinates{Lat: 120, Lon: 0}, ""); err == nil {
		t.Fatalf("latitude outside [-90,90] must be rejected")
	}
}

func TestGetWeatherSeparateHealthTables(t *testing.T) {
	failing := &mockWeatherClient{name: "w", priority: 10, reliability: 0.9, err: errors.New("down")}
	agg := newTestAggregator(time.Minute, failing)

	_, err := agg.GetWeather(context.Background(), domain.Coordinates{Lat: 1, Lon: 1}, "")
	if err == nil {
		t.Fatalf("expected failure")
	}
	if agg.Router().UnhealthyCount() != 1 {
		t.Fatalf("weather aggregator must own its health table")
	}
}
