package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/triggerr/core/pkg/logger"
)

const (
	defaultBaseCooldown = 30 * time.Second
	defaultMaxCooldown  = 10 * time.Minute
)

type healthEntry struct {
	healthy             bool
	consecutiveFailures int
	cooldownUntil       time.Time
}

// Router tracks per-source health and selects priority-ordered candidates.
// Health state is per-process and non-persistent.
type Router[C Client] struct {
	mu           sync.Mutex
	clients      []C
	health       map[string]*healthEntry
	baseCooldown time.Duration
	maxCooldown  time.Duration
	clock        func() time.Time
	log          *logger.Logger
}

// NewRouter creates a router over the given clients. All sources start healthy.
func NewRouter[C Client](clients []C, log *logger.Logger) *Router[C] {
	if log == nil {
		log = logger.NewDefault("source-router")
	}
	health := make(map[string]*healthEntry, len(clients))
	for _, c := range clients {
		health[c.Name()] = &healthEntry{healthy: true}
	}
	return &Router[C]{
		clients:      clients,
		health:       health,
		baseCooldown: defaultBaseCooldown,
		maxCooldown:  defaultMaxCooldown,
		clock:        time.Now,
		log:          log,
	}
}

// WithClock injects a time source for tests.
func (r *Router[C]) WithClock(clock func() time.Time) {
	r.mu.Lock()
	r.clock = clock
	r.mu.Unlock()
}

// WithCooldown overrides the cooldown bounds.
func (r *Router[C]) WithCooldown(base, max time.Duration) {
	r.mu.Lock()
	if base > 0 {
		r.baseCooldown = base
	}
	if max > 0 {
		r.maxCooldown = max
	}
	r.mu.Unlock()
}

// Candidates returns up to max currently healthy clients sorted by descending
// priority, ties broken by name for determinism. A source whose cooldown has
// elapsed is probed via IsAvailable; success resets its health entry.
func (r *Router[C]) Candidates(ctx context.Context, max int) []C {
	r.mu.Lock()
	now := r.clock()
	pool := make([]C, 0, len(r.clients))
	var probe []C
	for _, c := range r.clients {
		entry := r.health[c.Name()]
		switch {
		case entry.healthy:
			pool = append(pool, c)
		case now.After(entry.cooldownUntil):
			probe = append(probe, c)
		}
	}
	r.mu.Unlock()

	// Probe outside the lock; IsAvailable may touch the network.
	for _, c := range probe {
		if c.IsAvailable(ctx) {
			r.MarkHealthy(c.Name())
			pool = append(pool, c)
		} else {
			r.MarkUnhealthy(c.Name())
		}
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Priority() != pool[j].Priority() {
			return pool[i].Priority() > pool[j].Priority()
		}
		return pool[i].Name() < pool[j].Name()
	})
	if max > 0 && len(pool) > max {
		pool = pool[:max]
	}
	return pool
}

// MarkUnhealthy records a failed attempt and schedules an exponential cooldown
// that scales with consecutive failures.
func (r *Router[C]) MarkUnhealthy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.health[name]
	if !ok {
		return
	}
	entry.healthy = false
	entry.consecutiveFailures++
	cooldown := r.baseCooldown << uint(entry.consecutiveFailures-1)
	if cooldown > r.maxCooldown || cooldown <= 0 {
		cooldown = r.maxCooldown
	}
	entry.cooldownUntil = r.clock().Add(cooldown)
	r.log.WithField("source", name).
		WithField("consecutive_failures", entry.consecutiveFailures).
		WithField("cooldown", cooldown).
		Warn("source marked unhealthy")
}

// MarkHealthy resets a source's health entry after a successful probe.
func (r *Router[C]) MarkHealthy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.health[name]
	if !ok {
		return
	}
	if !entry.healthy {
		r.log.WithField("source", name).Info("source recovered")
	}
	entry.healthy = true
	entry.consecutiveFailures = 0
	entry.cooldownUntil = time.Time{}
}

// UnhealthyCount reports how many sources are currently excluded.
func (r *Router[C]) UnhealthyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.health {
		if !e.healthy {
			n++
		}
	}
	return n
}
