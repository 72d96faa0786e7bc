// Package aggregator implements the cache-check → fan-out → resolve →
// cache-write pipeline shared by the flight and weather aggregators.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/triggerr/core/internal/aggregator/cache"
	"github.com/triggerr/core/internal/aggregator/resolve"
	"github.com/triggerr/core/internal/aggregator/source"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

// Error categories surfaced by the aggregation tier. Per-source failures are
// contained; only these collapse upward.
var (
	ErrNoSourcesAvailable = errors.New("NO_SOURCES_AVAILABLE")
	ErrLowQualityData     = errors.New("LOW_QUALITY_DATA")
)

// Result is what an aggregator returns for one key.
type Result[T any] struct {
	Data           T
	FromCache      bool
	SourcesUsed    []string
	Conflicts      []resolve.Conflict
	QualityScore   float64
	ProcessingTime time.Duration
}

// Config bounds one pipeline instance.
type Config struct {
	Domain           string
	MaxSources       int
	PerSourceTimeout time.Duration
	Timeout          time.Duration
	MinQualityScore  float64
}

func (c Config) normalized() Config {
	if c.MaxSources < 1 {
		c.MaxSources = 3
	}
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Pipeline runs the aggregation algorithm for one domain over clients of type
// C producing canonical records of type T.
type Pipeline[T any, C source.Client] struct {
	cfg     Config
	cache   cache.Store
	router  *source.Router[C]
	log     *logger.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// New creates a pipeline. metrics may be nil.
func New[T any, C source.Client](cfg Config, store cache.Store, router *source.Router[C], log *logger.Logger, m *metrics.Metrics) *Pipeline[T, C] {
	if log == nil {
		log = logger.NewDefault(cfg.Domain + "-aggregator")
	}
	return &Pipeline[T, C]{
		cfg:     cfg.normalized(),
		cache:   store,
		router:  router,
		log:     log,
		metrics: m,
		clock:   time.Now,
	}
}

// WithClock injects a time source for tests.
func (p *Pipeline[T, C]) WithClock(clock func() time.Time) { p.clock = clock }

// Router exposes the health table, e.g. for probes.
func (p *Pipeline[T, C]) Router() *source.Router[C] { return p.router }

// cachedRecord is the envelope persisted in the cache; it preserves the
// original provenance and quality score across hits.
type cachedRecord[T any] struct {
	Data    T         `json:"data"`
	Quality float64   `json:"quality"`
	StoredAt time.Time `json:"storedAt"`
}

type fetchOutcome[T any] struct {
	name    string
	record  *T
	err     error
	elapsed time.Duration
}

// Run executes the pipeline for one key. fetch issues a single provider call;
// resolveFn merges the successful records; validate rejects resolved records
// that fail domain invariants.
func (p *Pipeline[T, C]) Run(
	ctx context.Context,
	key string,
	fetch func(ctx context.Context, client C) (*T, error),
	resolveFn func(inputs []resolve.Input[T]) (resolve.Outcome[T], error),
	validate func(record T) error,
) (Result[T], error) {
	start := p.clock()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	// Step 1: cache check.
	if raw, ok := p.cache.Get(ctx, key); ok {
		var cached cachedRecord[T]
		if err := json.Unmarshal(raw, &cached); err == nil {
			if p.metrics != nil {
				p.metrics.CacheHitsTotal.WithLabelValues(p.cfg.Domain).Inc()
			}
			return Result[T]{
				Data:           cached.Data,
				FromCache:      true,
				SourcesUsed:    []string{},
				QualityScore:   cached.Quality,
				ProcessingTime: p.clock().Sub(start),
			}, nil
		}
		// A corrupt entry is dropped and refetched.
		_ = p.cache.Delete(ctx, key)
	}
	if p.metrics != nil {
		p.metrics.CacheMissesTotal.WithLabelValues(p.cfg.Domain).Inc()
	}

	// Step 2: source selection.
	clients := p.router.Candidates(ctx, p.cfg.MaxSources)
	if len(clients) == 0 {
		return Result[T]{}, fmt.Errorf("%w: no healthy %s sources for %s", ErrNoSourcesAvailable, p.cfg.Domain, key)
	}

	// Step 3: parallel fetch with per-source timeouts.
	outcomes := make([]fetchOutcome[T], len(clients))
	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(i int, client C) {
			defer wg.Done()
			fetchCtx, fetchCancel := context.WithTimeout(ctx, p.cfg.PerSourceTimeout)
			defer fetchCancel()
			began := time.Now()
			record, err := fetch(fetchCtx, client)
			outcomes[i] = fetchOutcome[T]{
				name:    client.Name(),
				record:  record,
				err:     err,
				elapsed: time.Since(began),
			}
		}(i, client)
	}
	wg.Wait()

	inputs := make([]resolve.Input[T], 0, len(clients))
	sourcesUsed := make([]string, 0, len(clients))
	now := p.clock()
	for i, out := range outcomes {
		client := clients[i]
		switch {
		case out.err != nil:
			p.router.MarkUnhealthy(out.name)
			p.observeFetch(out.name, "error", out.elapsed)
			p.log.WithError(out.err).
				WithField("source", out.name).
				WithField("key", key).
				Warn("source fetch failed")
		case out.record == nil:
			p.router.MarkUnhealthy(out.name)
			p.observeFetch(out.name, "empty", out.elapsed)
		default:
			p.observeFetch(out.name, "ok", out.elapsed)
			inputs = append(inputs, resolve.Input[T]{
				Source:      client.Name(),
				Reliability: client.Reliability(),
				Priority:    client.Priority(),
				ObservedAt:  now,
				Record:      *out.record,
			})
			sourcesUsed = append(sourcesUsed, client.Name())
		}
	}
	if p.metrics != nil {
		p.metrics.SourcesUnhealthy.WithLabelValues(p.cfg.Domain).Set(float64(p.router.UnhealthyCount()))
	}

	// Step 4: resolve.
	if len(inputs) == 0 {
		return Result[T]{}, fmt.Errorf("%w: No successful responses from %d %s sources for %s",
			ErrNoSourcesAvailable, len(clients), p.cfg.Domain, key)
	}
	outcome, err := resolveFn(inputs)
	if err != nil {
		return Result[T]{}, fmt.Errorf("resolve %s %s: %w", p.cfg.Domain, key, err)
	}
	if p.metrics != nil {
		p.metrics.QualityScore.WithLabelValues(p.cfg.Domain).Observe(outcome.Quality)
		for _, c := range outcome.Conflicts {
			p.metrics.ConflictsTotal.WithLabelValues(p.cfg.Domain, c.Field).Inc()
		}
	}

	// Step 5: validate.
	if validate != nil {
		if err := validate(outcome.Record); err != nil {
			return Result[T]{}, fmt.Errorf("%w: %v", ErrLowQualityData, err)
		}
	}
	if outcome.Quality < p.cfg.MinQualityScore {
		return Result[T]{}, fmt.Errorf("%w: quality score %.2f below minimum %.2f",
			ErrLowQualityData, outcome.Quality, p.cfg.MinQualityScore)
	}

	// Step 6: best-effort cache write.
	if payload, err := json.Marshal(cachedRecord[T]{Data: outcome.Record, Quality: outcome.Quality, StoredAt: now}); err == nil {
		if err := p.cache.Set(ctx, key, payload); err != nil {
			p.log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}

	return Result[T]{
		Data:           outcome.Record,
		FromCache:      false,
		SourcesUsed:    sourcesUsed,
		Conflicts:      outcome.Conflicts,
		QualityScore:   outcome.Quality,
		ProcessingTime: p.clock().Sub(start),
	}, nil
}

func (p *Pipeline[T, C]) observeFetch(name, outcome string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveFetch(p.cfg.Domain, name, outcome, elapsed)
	}
}
