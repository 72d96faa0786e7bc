package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/triggerr/core/internal/app/domain/escrow"
	"github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
)

// Memory is a thread-safe in-memory store implementing the storage contracts.
// It is intended for tests, fixtures, and prototyping.
type Memory struct {
	mu       sync.RWMutex
	policies map[string]policy.Policy
	escrows  map[string]escrow.Escrow
	payouts  map[string]payout.Record
	wallets  map[string]payout.Wallet
}

var _ Store = (*Memory)(nil)
var _ Transactional = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		policies: make(map[string]policy.Policy),
		escrows:  make(map[string]escrow.Escrow),
		payouts:  make(map[string]payout.Record),
		wallets:  make(map[string]payout.Wallet),
	}
}

// WithinTx runs fn against the same store; every individual call is already
// atomic, which is all the in-memory backend guarantees.
func (m *Memory) WithinTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}

// --- PolicyStore --------------------------------------------------------------

func (m *Memory) CreatePolicy(_ context.Context, p policy.Policy) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := m.policies[p.ID]; exists {
		return policy.Policy{}, fmt.Errorf("policy %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.policies[p.ID] = p
	return p, nil
}

func (m *Memory) GetPolicy(_ context.Context, id string) (policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return policy.Policy{}, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *Memory) ListActivePolicies(_ context.Context, now time.Time, limit int) ([]policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]policy.Policy, 0)
	for _, p := range m.policies {
		if p.Status == policy.StatusActive && p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListExpiredActivePolicies(_ context.Context, now time.Time, limit int) ([]policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]policy.Policy, 0)
	for _, p := range m.policies {
		if p.Status == policy.StatusActive && !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) TransitionPolicyStatus(_ context.Context, id string, from, to policy.Status) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return policy.Policy{}, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	if p.Status != from {
		return policy.Policy{}, fmt.Errorf("policy %s is %s, expected %s: %w", id, p.Status, from, ErrConflict)
	}
	if !from.CanTransition(to) {
		return policy.Policy{}, fmt.Errorf("policy %s cannot move %s -> %s: %w", id, from, to, ErrConflict)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	m.policies[id] = p
	return p, nil
}

// --- EscrowStore --------------------------------------------------------------

func (m *Memory) CreateEscrow(_ context.Context, e escrow.Escrow) (escrow.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		return escrow.Escrow{}, fmt.Errorf("escrow id is required")
	}
	if _, exists := m.escrows[e.ID]; exists {
		return escrow.Escrow{}, fmt.Errorf("escrow %s already exists", e.ID)
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.escrows[e.ID] = e
	return e, nil
}

func (m *Memory) GetEscrow(_ context.Context, id string) (escrow.Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escrows[id]
	if !ok {
		return escrow.Escrow{}, fmt.Errorf("escrow %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (m *Memory) GetOpenEscrowForPolicy(_ context.Context, policyID string) (escrow.Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found escrow.Escrow
		ok    bool
	)
	for _, e := range m.escrows {
		if e.PolicyID != policyID {
			continue
		}
		if e.Status != escrow.StatusPending && e.Status != escrow.StatusActive {
			continue
		}
		if !ok || e.CreatedAt.Before(found.CreatedAt) {
			found = e
			ok = true
		}
	}
	if !ok {
		return escrow.Escrow{}, fmt.Errorf("open escrow for policy %s: %w", policyID, ErrNotFound)
	}
	return found, nil
}

func (m *Memory) TransitionEscrowStatus(_ context.Context, id string, from, to escrow.Status) (escrow.Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[id]
	if !ok {
		return escrow.Escrow{}, fmt.Errorf("escrow %s: %w", id, ErrNotFound)
	}
	if e.Status != from {
		return escrow.Escrow{}, fmt.Errorf("escrow %s is %s, expected %s: %w", id, e.Status, from, ErrConflict)
	}
	if !from.CanTransition(to) {
		return escrow.Escrow{}, fmt.Errorf("escrow %s cannot move %s -> %s: %w", id, from, to, ErrConflict)
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	m.escrows[id] = e
	return e, nil
}

// --- PayoutStore --------------------------------------------------------------

func (m *Memory) CreatePayout(_ context.Context, rec payout.Record) (payout.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := m.payouts[rec.ID]; exists {
		return payout.Record{}, fmt.Errorf("payout %s already exists", rec.ID)
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.payouts[rec.ID] = rec
	return rec, nil
}

func (m *Memory) GetPayout(_ context.Context, id string) (payout.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.payouts[id]
	if !ok {
		return payout.Record{}, fmt.Errorf("payout %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (m *Memory) ListPayoutsByPolicy(_ context.Context, policyID string) ([]payout.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payout.Record, 0)
	for _, rec := range m.payouts {
		if rec.PolicyID == policyID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- WalletStore --------------------------------------------------------------

func (m *Memory) CreateWallet(_ context.Context, w payout.Wallet) (payout.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if _, exists := m.wallets[w.ID]; exists {
		return payout.Wallet{}, fmt.Errorf("wallet %s already exists", w.ID)
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	m.wallets[w.ID] = w
	return w, nil
}

func (m *Memory) GetPrimaryWallet(_ context.Context, userID string) (payout.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		fallback payout.Wallet
		haveAny  bool
	)
	for _, w := range m.wallets {
		if w.UserID != userID {
			continue
		}
		if w.IsPrimary {
			return w, nil
		}
		if !haveAny {
			fallback = w
			haveAny = true
		}
	}
	if haveAny {
		return fallback, nil
	}
	return payout.Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
}
