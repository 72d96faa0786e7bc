// Package monitor implements the periodic policy scanner: fetch active
// policies, assemble their data bundles through the data router, evaluate
// trigger predicates, and hand triggered policy ids to the payout engine.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	aggrouter "github.com/triggerr/core/internal/aggregator/router"
	payoutdomain "github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
	"github.com/triggerr/core/internal/app/storage"
	payoutengine "github.com/triggerr/core/internal/services/payout"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

// State is the monitor's cycle state, exposed for probes.
type State string

const (
	StateIdle       State = "IDLE"
	StateScanning   State = "SCANNING"
	StateTriggering State = "TRIGGERING"
)

// Config controls the scanner.
type Config struct {
	Interval                     time.Duration
	MaxPoliciesPerCheck          int
	DefaultDelayThresholdMinutes int
	RequestedBy                  string
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.MaxPoliciesPerCheck < 1 {
		c.MaxPoliciesPerCheck = 50
	}
	if c.DefaultDelayThresholdMinutes < 1 {
		c.DefaultDelayThresholdMinutes = 15
	}
	if c.RequestedBy == "" {
		c.RequestedBy = "policy-monitor"
	}
	return c
}

// CycleReport summarizes one completed scan cycle.
type CycleReport struct {
	StartedAt       time.Time
	Duration        time.Duration
	PoliciesChecked int
	Expired         int
	Triggered       []Evaluation
	Failures        []Evaluation
	PayoutSummary   *payoutdomain.Summary
}

// Monitor is the lifecycle-managed periodic scanner. One tick never overlaps
// its successor; a tick that is still running causes the next firing to be
// skipped.
type Monitor struct {
	cfg     Config
	store   storage.PolicyStore
	router  *aggrouter.Router
	engine  *payoutengine.Engine
	log     *logger.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	mu           sync.Mutex
	cron         *cron.Cron
	isMonitoring bool
	state        State
}

// New constructs a policy monitor.
func New(cfg Config, store storage.PolicyStore, router *aggrouter.Router, engine *payoutengine.Engine, log *logger.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = logger.NewDefault("policy-monitor")
	}
	return &Monitor{
		cfg:     cfg.normalized(),
		store:   store,
		router:  router,
		engine:  engine,
		log:     log,
		metrics: m,
		clock:   time.Now,
		state:   StateIdle,
	}
}

// WithClock injects a time source for tests.
func (m *Monitor) WithClock(clock func() time.Time) { m.clock = clock }

// State reports the current cycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether the timer is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isMonitoring
}

// Start schedules the periodic scan. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isMonitoring {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(m.log))))
	spec := fmt.Sprintf("@every %s", m.cfg.Interval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := m.Scan(ctx); err != nil {
			m.log.WithError(err).Warn("policy scan cycle failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule policy scan: %w", err)
	}
	c.Start()

	m.cron = c
	m.isMonitoring = true
	m.log.WithField("interval", m.cfg.Interval).Info("policy monitor started")
	return nil
}

// Stop halts the timer and waits for an in-flight cycle to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.isMonitoring {
		m.mu.Unlock()
		return nil
	}
	c := m.cron
	m.cron = nil
	m.isMonitoring = false
	m.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	m.log.Info("policy monitor stopped")
	return nil
}

// Scan runs one evaluation cycle. It is also the entry point for on-demand
// checks when the timer is disabled. Per-policy evaluation failures are
// recorded but never abort the cycle.
func (m *Monitor) Scan(ctx context.Context) (CycleReport, error) {
	start := m.clock()
	m.setState(StateScanning)
	defer m.setState(StateIdle)

	report := CycleReport{StartedAt: start}

	report.Expired = m.expireSweep(ctx)

	policies, err := m.store.ListActivePolicies(ctx, start, m.cfg.MaxPoliciesPerCheck)
	if err != nil {
		return report, fmt.Errorf("list active policies: %w", err)
	}
	report.PoliciesChecked = len(policies)

	for _, p := range policies {
		eval := m.evaluatePolicy(ctx, p)
		if m.metrics != nil {
			m.metrics.PoliciesEvaluated.Inc()
		}
		switch {
		case eval.Err != "":
			report.Failures = append(report.Failures, eval)
			if m.metrics != nil {
				m.metrics.EvaluationFailures.Inc()
			}
		case eval.Triggered:
			report.Triggered = append(report.Triggered, eval)
			if m.metrics != nil {
				m.metrics.PoliciesTriggered.WithLabelValues(string(eval.CoverageType)).Inc()
			}
			m.log.WithField("policy_id", eval.PolicyID).
				WithField("coverage_type", eval.CoverageType).
				WithField("reason", eval.Reason).
				WithField("confidence", eval.Confidence).
				Info("policy triggered")
		}
	}

	// Hand the triggered set to the payout engine. The engine is idempotent,
	// so the cycle completes regardless of per-policy payout outcomes.
	if len(report.Triggered) > 0 && m.engine != nil {
		m.setState(StateTriggering)
		ids := make([]string, 0, len(report.Triggered))
		for _, eval := range report.Triggered {
			ids = append(ids, eval.PolicyID)
		}
		summary := m.engine.ProcessTriggeredPayouts(ctx, ids, triggerReason(report.Triggered), m.cfg.RequestedBy)
		report.PayoutSummary = &summary
	}

	if m.metrics != nil {
		m.metrics.MonitorCyclesTotal.Inc()
	}
	report.Duration = m.clock().Sub(start)
	m.log.WithField("checked", report.PoliciesChecked).
		WithField("triggered", len(report.Triggered)).
		WithField("failures", len(report.Failures)).
		WithField("expired", report.Expired).
		WithField("duration", report.Duration).
		Info("policy scan cycle completed")
	return report, nil
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// expireSweep transitions ACTIVE policies past their expiry to EXPIRED.
func (m *Monitor) expireSweep(ctx context.Context) int {
	expired, err := m.store.ListExpiredActivePolicies(ctx, m.clock(), m.cfg.MaxPoliciesPerCheck)
	if err != nil {
		m.log.WithError(err).Warn("expired policy sweep failed")
		return 0
	}
	count := 0
	for _, p := range expired {
		if _, err := m.store.TransitionPolicyStatus(ctx, p.ID, policy.StatusActive, policy.StatusExpired); err != nil {
			m.log.WithError(err).WithField("policy_id", p.ID).Warn("policy expiry transition failed")
			continue
		}
		count++
	}
	return count
}

func (m *Monitor) evaluatePolicy(ctx context.Context, p policy.Policy) Evaluation {
	if err := p.Validate(); err != nil {
		return Evaluation{PolicyID: p.ID, CoverageType: p.CoverageType, Err: err.Error()}
	}

	req := aggrouter.Request{
		FlightNumber: p.FlightNumber,
		Date:         p.FlightDate,
		Airports:     []string{p.OriginIATA, p.DestinationIATA},
	}
	if p.CoverageType != policy.CoverageWeatherDisruption {
		// Delay and cancellation predicates only need the flight record.
		skip := false
		req.IncludeWeather = &skip
	}

	bundle, err := m.router.GetDataForPolicy(ctx, req)
	if err != nil {
		return Evaluation{PolicyID: p.ID, CoverageType: p.CoverageType, Err: fmt.Sprintf("policy data: %v", err)}
	}

	return Evaluate(p, bundle.Flight, bundle.Weather, m.cfg.DefaultDelayThresholdMinutes)
}

func triggerReason(evals []Evaluation) string {
	if len(evals) == 1 {
		return evals[0].Reason
	}
	return fmt.Sprintf("%d policies met parametric trigger conditions", len(evals))
}
