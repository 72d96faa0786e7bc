package flight

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/triggerr/core/internal/aggregator"
	"github.com/triggerr/core/internal/aggregator/cache"
	"github.com/triggerr/core/internal/aggregator/source"
	domain "github.com/triggerr/core/internal/app/domain/flight"
)

type mockFlightClient struct {
	name        string
	priority    int
	reliability float64
	record      *domain.Canonical
	err         error
	calls       int
}

func (m *mockFlightClient) Name() string                       { return m.name }
func (m *mockFlightClient) Priority() int                      { return m.priority }
func (m *mockFlightClient) Reliability() float64               { return m.reliability }
func (m *mockFlightClient) IsAvailable(_ context.Context) bool { return true }

func (m *mockFlightClient) FetchFlight(_ context.Context, flightNumber, date string) (*domain.Canonical, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.record == nil {
		return nil, nil
	}
	rec := *m.record
	rec.FlightNumber = flightNumber
	return &rec, nil
}

func onTimeRecord() *domain.Canonical {
	return &domain.Canonical{
		FlightNumber:       "UA456",
		ScheduledDeparture: time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC),
		OriginIATA:         "SFO",
		DestinationIATA:    "ORD",
		Status:             domain.StatusOnTime,
	}
}

func delayedRecord(minutes int) *domain.Canonical {
	rec := onTimeRecord()
	rec.Status = domain.StatusDelayed
	rec.DepartureDelayMinutes = &minutes
	return rec
}

func newTestAggregator(ttl time.Duration, clients ...source.FlightClient) *Aggregator {
	return New(Config{
		Pipeline: aggregator.Config{
			MaxSources:       3,
			PerSourceTimeout: time.Second,
			Timeout:          5 * time.Second,
			MinQualityScore:  0.3,
		},
	}, cache.NewMemory(ttl), clients, nil, nil)
}

func TestGetFlightStatusCacheHit(t *testing.T) {
	client := &mockFlightClient{name: "mock-a", priority: 10, reliability: 0.9, record: onTimeRecord()}
	agg := newTestAggregator(time.Minute, client)

	first, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.FromCache {
		t.Fatalf("first call must miss the cache")
	}
	if len(first.SourcesUsed) == 0 {
		t.Fatalf("live fetch must report sources used")
	}

	second, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second call within TTL must hit the cache")
	}
	if len(second.SourcesUsed) != 0 {
		t.Fatalf("cache hit must report no sources used, got %v", second.SourcesUsed)
	}
	if !reflect.DeepEqual(first.Data.Status, second.Data.Status) || first.Data.FlightNumber != second.Data.FlightNumber {
		t.Fatalf("cached payload must match: %#v vs %#v", first.Data, second.Data)
	}
	if second.QualityScore != first.QualityScore {
		t.Fatalf("cache hit must preserve the original quality score")
	}
	if client.calls != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", client.calls)
	}
}

func TestGetFlightStatusCacheExpiry(t *testing.T) {
	client := &mockFlightClient{name: "mock-a", priority: 10, reliability: 0.9, record: delayedRecord(20)}
	agg := newTestAggregator(100*time.Millisecond, client)

	first, err := agg.GetFlightStatus(context.Background(), "DL789", "2025-12-15")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.FromCache {
		t.Fatalf("first call must miss")
	}

	time.Sleep(150 * time.Millisecond)

	second, err := agg.GetFlightStatus(context.Background(), "DL789", "2025-12-15")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.FromCache {
		t.Fatalf("expired entry must force a refetch")
	}
	if client.calls != 2 {
		t.Fatalf("expected two upstream fetches, got %d", client.calls)
	}
}

func TestGetFlightStatusAllSourcesFail(t *testing.T) {
	a := &mockFlightClient{name: "a", priority: 10, reliability: 0.9, err: errors.New("boom")}
	b := &mockFlightClient{name: "b", priority: 5, reliability: 0.8, err: errors.New("boom")}
	agg := newTestAggregator(time.Minute, a, b)

	_, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15")
	if err == nil {
		t.Fatalf("expected failure when every source fails")
	}
	if !strings.Contains(err.Error(), "No successful responses") {
		t.Fatalf("error must mention 'No successful responses', got %v", err)
	}
	if !errors.Is(err, aggregator.ErrNoSourcesAvailable) {
		t.Fatalf("error must carry the NO_SOURCES_AVAILABLE category, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("both sources must have been attempted")
	}
}

func TestGetFlightStatusPartialFailureContained(t *testing.T) {
	ok := &mockFlightClient{name: "ok", priority: 10, reliability: 0.9, record: delayedRecord(45)}
	bad := &mockFlightClient{name: "bad", priority: 5, reliability: 0.8, err: errors.New("boom")}
	agg := newTestAggregator(time.Minute, ok, bad)

	result, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15")
	if err != nil {
		t.Fatalf("one healthy source must suffice: %v", err)
	}
	if len(result.SourcesUsed) != 1 || result.SourcesUsed[0] != "ok" {
		t.Fatalf("unexpected sources used: %v", result.SourcesUsed)
	}
	// The failing source is excluded on the next call while it cools down.
	if agg.Router().UnhealthyCount() != 1 {
		t.Fatalf("failing source must be marked unhealthy")
	}
}

func TestGetFlightStatusLowQualityRejected(t *testing.T) {
	weak := &mockFlightClient{name: "weak", priority: 10, reliability: 0.2, record: delayedRecord(10)}
	agg := newTestAggregator(time.Minute, weak)

	_, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15")
	if err == nil {
		t.Fatalf("expected low quality rejection")
	}
	if !errors.Is(err, aggregator.ErrLowQualityData) {
		t.Fatalf("expected LOW_QUALITY_DATA, got %v", err)
	}
}

func TestGetFlightStatusInvalidKey(t *testing.T) {
	agg := newTestAggregator(time.Minute, &mockFlightClient{name: "a", priority: 1, reliability: 0.9, record: onTimeRecord()})
	if _, err := agg.GetFlightStatus(context.Background(), "", "2025-12-15"); err == nil {
		t.Fatalf("empty flight number must be rejected")
	}
	if _, err := agg.GetFlightStatus(context.Background(), "UA456", "12/15/2025"); err == nil {
		t.Fatalf("malformed date must be rejected")
	}
}

func TestGetFlightStatusNoHealthySources(t *testing.T) {
	bad := &mockFlightClient{name: "bad", priority: 5, reliability: 0.8, err: errors.New("boom")}
	agg := newTestAggregator(time.Minute, bad)

	if _, err := agg.GetFlightStatus(context.Background(), "UA456", "2025-12-15"); err == nil {
		t.Fatalf("expected failure")
	}
	// The source is now cooling down, so the next call has zero candidates.
	_, err := agg.GetFlightStatus(context.Background(), "UA999", "2025-12-15")
	if !errors.Is(err, aggregator.ErrNoSourcesAvailable) {
		t.Fatalf("expected NO_SOURCES_AVAILABLE with empty candidate set, got %v", err)
	}
	if bad.calls != 1 {
		t.Fatalf("cooling-down source must not be fetched again, calls=%d", bad.calls)
	}
}
