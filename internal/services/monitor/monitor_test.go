package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/triggerr/core/internal/aggregator"
	"github.com/triggerr/core/internal/aggregator/cache"
	flightagg "github.com/triggerr/core/internal/aggregator/flight"
	aggrouter "github.com/triggerr/core/internal/aggregator/router"
	"github.com/triggerr/core/internal/aggregator/source"
	weatheragg "github.com/triggerr/core/internal/aggregator/weather"
	"github.com/triggerr/core/internal/app/domain/escrow"
	flightdomain "github.com/triggerr/core/internal/app/domain/flight"
	payoutdomain "github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
	weatherdomain "github.com/triggerr/core/internal/app/domain/weather"
	"github.com/triggerr/core/internal/app/storage"
	"github.com/triggerr/core/internal/chain"
	payoutengine "github.com/triggerr/core/internal/services/payout"
)

type scriptedFlightClient struct {
	records map[string]*flightdomain.Canonical
}

func (s *scriptedFlightClient) Name() string                       { return "scripted" }
func (s *scriptedFlightClient) Priority() int                      { return 10 }
func (s *scriptedFlightClient) Reliability() float64               { return 0.9 }
func (s *scriptedFlightClient) IsAvailable(_ context.Context) bool { return true }

func (s *scriptedFlightClient) FetchFlight(_ context.Context, flightNumber, _ string) (*flightdomain.Canonical, error) {
	rec, ok := s.records[flightNumber]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

type staticWeatherClient struct {
	condition weatherdomain.Condition
}

func (s *staticWeatherClient) Name() string                       { return "static-weather" }
func (s *staticWeatherClient) Priority() int                      { return 10 }
func (s *staticWeatherClient) Reliability() float64               { return 0.9 }
func (s *staticWeatherClient) IsAvailable(_ context.Context) bool { return true }

func (s *staticWeatherClient) FetchWeather(_ context.Context, coords weatherdomain.Coordinates, _ string) (*weatherdomain.Canonical, error) {
	return &weatherdomain.Canonical{
		Coordinates:          coords,
		ObservationTimestamp: time.Now().UTC(),
		TemperatureCelsius:   10,
		WindSpeedKmh:         15,
		Condition:            s.condition,
	}, nil
}

func scheduledAt() time.Time { return time.Date(2025, 12, 15, 14, 0, 0, 0, time.UTC) }

func delayedCanonical(minutes int) *flightdomain.Canonical {
	return &flightdomain.Canonical{
		FlightNumber:          "UA456",
		ScheduledDeparture:    scheduledAt(),
		OriginIATA:            "SFO",
		DestinationIATA:       "ORD",
		Status:                flightdomain.StatusDelayed,
		DepartureDelayMinutes: &minutes,
	}
}

type harness struct {
	store   *storage.Memory
	monitor *Monitor
	mock    *chain.Mock
}

func newHarness(t *testing.T, flights *scriptedFlightClient) *harness {
	t.Helper()
	pipelineCfg := aggregator.Config{
		MaxSources:       3,
		PerSourceTimeout: time.Second,
		Timeout:          5 * time.Second,
		MinQualityScore:  0.3,
	}
	flightAgg := flightagg.New(flightagg.Config{Pipeline: pipelineCfg},
		cache.NewMemory(time.Minute), []source.FlightClient{flights}, nil, nil)
	weatherAgg := weatheragg.New(weatheragg.Config{Pipeline: pipelineCfg, GridDecimals: 4},
		cache.NewMemory(time.Minute), []source.WeatherClient{&staticWeatherClient{condition: weatherdomain.ConditionCloudy}}, nil, nil)
	router := aggrouter.New(aggrouter.Config{Timeout: 10 * time.Second, MaxConcurrentWeatherRequests: 2}, flightAgg, weatherAgg, nil)

	store := storage.NewMemory()
	mock := chain.NewMock("PAYGO")
	registry := chain.NewRegistry("PAYGO", nil)
	registry.Register(mock)
	engine := payoutengine.New(store, registry, nil, nil)

	mon := New(Config{
		Interval:                     time.Minute,
		MaxPoliciesPerCheck:          50,
		DefaultDelayThresholdMinutes: 15,
	}, store, router, engine, nil, nil)

	return &harness{store: store, monitor: mon, mock: mock}
}

func seedEligiblePolicy(t *testing.T, store *storage.Memory, id string, coverage policy.CoverageType, threshold int) policy.Policy {
	t.Helper()
	ctx := context.Background()
	p, err := store.CreatePolicy(ctx, policy.Policy{
		ID:           id,
		PolicyNumber: "PN-" + id,
		UserID:       "user-" + id,
		ProviderID:   "acme",
		FlightID:     "f-" + id,
		FlightNumber: "UA456",
		FlightDate:   "2025-12-15",
		OriginIATA:   "SFO",
		DestinationIATA: "ORD",
		CoverageType: coverage,
		PayoutAmount: "250.00",
		Status:       policy.StatusActive,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
		Terms:        policy.Terms{DelayThresholdMinutes: threshold},
	})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if _, err := store.CreateWallet(ctx, payoutdomain.Wallet{UserID: p.UserID, Address: "0x" + id, Chain: "PAYGO", WalletType: "custodial", IsPrimary: true}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := store.CreateEscrow(ctx, escrow.Escrow{
		ID: "esc-" + id, BlockchainID: "0xesc" + id, PolicyID: p.ID, Chain: "PAYGO",
		EscrowModel: escrow.ModelPolicy, Status: escrow.StatusActive, Amount: "250.00",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	return p
}

func TestScanTriggersDelayedPolicy(t *testing.T) {
	flights := &scriptedFlightClient{records: map[string]*flightdomain.Canonical{"UA456": delayedCanonical(45)}}
	h := newHarness(t, flights)
	seedEligiblePolicy(t, h.store, "p1", policy.CoverageFlightDelay, 15)

	report, err := h.monitor.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.PoliciesChecked != 1 || len(report.Triggered) != 1 {
		t.Fatalf("unexpected report: %#v", report)
	}
	eval := report.Triggered[0]
	if eval.Reason != "Flight delayed by 45 minutes, exceeding threshold of 15 minutes" {
		t.Fatalf("unexpected reason: %q", eval.Reason)
	}
	if eval.Confidence != 0.95 {
		t.Fatalf("unexpected confidence: %f", eval.Confidence)
	}

	// The payout engine completed the claim.
	if report.PayoutSummary == nil || report.PayoutSummary.ProcessedCount != 1 {
		t.Fatalf("expected payout summary: %#v", report.PayoutSummary)
	}
	p, _ := h.store.GetPolicy(context.Background(), "p1")
	if p.Status != policy.StatusClaimed {
		t.Fatalf("policy must be CLAIMED after trigger, got %s", p.Status)
	}
}

func TestScanLeavesUntriggeredPoliciesAlone(t *testing.T) {
	flights := &scriptedFlightClient{records: map[string]*flightdomain.Canonical{"UA456": delayedCanonical(5)}}
	h := newHarness(t, flights)
	seedEligiblePolicy(t, h.store, "p1", policy.CoverageFlightDelay, 15)

	report, err := h.monitor.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Triggered) != 0 || report.PayoutSummary != nil {
		t.Fatalf("5-minute delay must not trigger: %#v", report)
	}
}

func TestScanEvaluationFailureDoesNotAbortCycle(t *testing.T) {
	// UA456 resolves; the second policy's flight is unknown to every source.
	flights := &scriptedFlightClient{records: map[string]*flightdomain.Canonical{"UA456": delayedCanonical(45)}}
	h := newHarness(t, flights)
	seedEligiblePolicy(t, h.store, "p1", policy.CoverageFlightDelay, 15)

	ctx := context.Background()
	seedBroken, err := h.store.CreatePolicy(ctx, policy.Policy{
		ID: "p3", PolicyNumber: "PN-p3", UserID: "user-p3", ProviderID: "acme",
		FlightID: "f-p3", FlightNumber: "ZZ999", FlightDate: "2025-12-15",
		CoverageType: policy.CoverageFlightDelay, PayoutAmount: "10",
		Status: policy.StatusActive, ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create broken policy: %v", err)
	}

	report, err := h.monitor.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(report.Triggered) != 1 {
		t.Fatalf("healthy policy must still trigger: %#v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].PolicyID != seedBroken.ID {
		t.Fatalf("broken policy must be recorded as failure: %#v", report.Failures)
	}
}

func TestScanExpiresLapsedPolicies(t *testing.T) {
	flights := &scriptedFlightClient{records: map[string]*flightdomain.Canonical{"UA456": delayedCanonical(5)}}
	h := newHarness(t, flights)

	ctx := context.Background()
	_, err := h.store.CreatePolicy(ctx, policy.Policy{
		ID: "lapsed", PolicyNumber: "PN-lapsed", UserID: "u", ProviderID: "acme",
		FlightID: "f", FlightNumber: "UA456", FlightDate: "2025-12-15",
		CoverageType: policy.CoverageFlightDelay, PayoutAmount: "10",
		Status: policy.StatusActive, ExpiresAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	report, err := h.monitor.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if report.Expired != 1 {
		t.Fatalf("expected one expiry, got %d", report.Expired)
	}
	p, _ := h.store.GetPolicy(ctx, "lapsed")
	if p.Status != policy.StatusExpired {
		t.Fatalf("lapsed policy must be EXPIRED, got %s", p.Status)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	flights := &scriptedFlightClient{records: map[string]*flightdomain.Canonical{}}
	h := newHarness(t, flights)
	ctx := context.Background()

	if h.monitor.Running() {
		t.Fatalf("monitor must start idle")
	}
	if err := h.monitor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !h.monitor.Running() {
		t.Fatalf("monitor must report running")
	}
	// Start is idempotent.
	if err := h.monitor.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := h.monitor.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.monitor.Running() {
		t.Fatalf("monitor must report stopped")
	}
	// Stop is idempotent.
	if err := h.monitor.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
