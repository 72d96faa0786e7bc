package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/triggerr/core/internal/app/domain/escrow"
	"github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
)

func activePolicy(id string, expires time.Time) policy.Policy {
	return policy.Policy{
		ID:           id,
		PolicyNumber: "PN-" + id,
		UserID:       "user-1",
		ProviderID:   "acme",
		FlightID:     "flight-1",
		FlightNumber: "UA456",
		FlightDate:   "2025-12-15",
		CoverageType: policy.CoverageFlightDelay,
		PayoutAmount: "250.00",
		Status:       policy.StatusActive,
		ExpiresAt:    expires,
	}
}

func TestPolicyLifecycleTransitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	created, err := m.CreatePolicy(ctx, activePolicy("p1", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := m.TransitionPolicyStatus(ctx, created.ID, policy.StatusActive, policy.StatusClaimed)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != policy.StatusClaimed {
		t.Fatalf("unexpected status %s", claimed.Status)
	}

	// CLAIMED is terminal: no further transition is legal.
	if _, err := m.TransitionPolicyStatus(ctx, created.ID, policy.StatusClaimed, policy.StatusExpired); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on terminal policy, got %v", err)
	}
	// A stale guard loses.
	if _, err := m.TransitionPolicyStatus(ctx, created.ID, policy.StatusActive, policy.StatusClaimed); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for stale guard, got %v", err)
	}
}

func TestListActivePolicies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if _, err := m.CreatePolicy(ctx, activePolicy("live", now.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CreatePolicy(ctx, activePolicy("stale", now.Add(-time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	claimed := activePolicy("claimed", now.Add(time.Hour))
	claimed.Status = policy.StatusClaimed
	if _, err := m.CreatePolicy(ctx, claimed); err != nil {
		t.Fatalf("create: %v", err)
	}

	live, err := m.ListActivePolicies(ctx, now, 10)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(live) != 1 || live[0].ID != "live" {
		t.Fatalf("unexpected active set: %#v", live)
	}

	expired, err := m.ListExpiredActivePolicies(ctx, now, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "stale" {
		t.Fatalf("unexpected expired set: %#v", expired)
	}
}

func TestEscrowStatusOneWay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.CreateEscrow(ctx, escrow.Escrow{
		ID:           "INS-TEST",
		BlockchainID: "0xabc",
		PolicyID:     "p1",
		Chain:        "PAYGO",
		EscrowModel:  escrow.ModelPolicy,
		Status:       escrow.StatusActive,
		Amount:       "250.00",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	released, err := m.TransitionEscrowStatus(ctx, created.ID, escrow.StatusActive, escrow.StatusReleased)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != escrow.StatusReleased {
		t.Fatalf("unexpected status %s", released.Status)
	}

	// RELEASED is terminal: any further transition must fail.
	for _, next := range []escrow.Status{escrow.StatusActive, escrow.StatusFulfilled, escrow.StatusExpired} {
		if _, err := m.TransitionEscrowStatus(ctx, created.ID, escrow.StatusReleased, next); err == nil {
			t.Fatalf("expected terminal escrow to reject %s", next)
		}
	}
}

func TestGetOpenEscrowForPolicy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetOpenEscrowForPolicy(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	released := escrow.Escrow{ID: "e-released", PolicyID: "p1", Chain: "PAYGO", EscrowModel: escrow.ModelPolicy, Status: escrow.StatusReleased, Amount: "1"}
	if _, err := m.CreateEscrow(ctx, released); err != nil {
		t.Fatalf("create: %v", err)
	}
	open := escrow.Escrow{ID: "e-open", PolicyID: "p1", Chain: "PAYGO", EscrowModel: escrow.ModelPolicy, Status: escrow.StatusActive, Amount: "1"}
	if _, err := m.CreateEscrow(ctx, open); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := m.GetOpenEscrowForPolicy(ctx, "p1")
	if err != nil {
		t.Fatalf("get open: %v", err)
	}
	if found.ID != "e-open" {
		t.Fatalf("expected the open escrow, got %s", found.ID)
	}
}

func TestPayoutAndWalletStores(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.CreateWallet(ctx, payout.Wallet{UserID: "user-1", Address: "0xwallet", Chain: "PAYGO", WalletType: "custodial", IsPrimary: true}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	w, err := m.GetPrimaryWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Address != "0xwallet" {
		t.Fatalf("unexpected wallet %#v", w)
	}

	rec, err := m.CreatePayout(ctx, payout.Record{PolicyID: "p1", EscrowID: "e1", Amount: "250.00", Status: payout.StatusCompleted, Chain: "PAYGO"})
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("payout id must be assigned")
	}
	list, err := m.ListPayoutsByPolicy(ctx, "p1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list payouts: %v %d", err, len(list))
	}
}
