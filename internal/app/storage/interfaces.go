// Package storage defines the persistence contracts consumed by the policy
// monitor and the payout engine, with in-memory and PostgreSQL backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/triggerr/core/internal/app/domain/escrow"
	"github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded status transition loses its race or
// is illegal for the current state.
var ErrConflict = errors.New("conflicting state transition")

// PolicyStore persists policy rows. The payout engine is the only component
// that mutates policy status through this path.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error)
	GetPolicy(ctx context.Context, id string) (policy.Policy, error)
	// ListActivePolicies returns ACTIVE policies with expiresAt > now, limited.
	ListActivePolicies(ctx context.Context, now time.Time, limit int) ([]policy.Policy, error)
	// ListExpiredActivePolicies returns ACTIVE policies whose expiry has passed.
	ListExpiredActivePolicies(ctx context.Context, now time.Time, limit int) ([]policy.Policy, error)
	// TransitionPolicyStatus performs a guarded status update; it fails with
	// ErrConflict when the current status is not `from`.
	TransitionPolicyStatus(ctx context.Context, id string, from, to policy.Status) (policy.Policy, error)
}

// EscrowStore persists escrow rows.
type EscrowStore interface {
	CreateEscrow(ctx context.Context, e escrow.Escrow) (escrow.Escrow, error)
	GetEscrow(ctx context.Context, id string) (escrow.Escrow, error)
	// GetOpenEscrowForPolicy returns the PENDING or ACTIVE escrow backing a
	// policy, or ErrNotFound.
	GetOpenEscrowForPolicy(ctx context.Context, policyID string) (escrow.Escrow, error)
	// TransitionEscrowStatus performs a guarded status update; it fails with
	// ErrConflict when the current status is not `from` or the transition is
	// not legal.
	TransitionEscrowStatus(ctx context.Context, id string, from, to escrow.Status) (escrow.Escrow, error)
}

// PayoutStore persists payout records. The payout engine is the sole writer.
type PayoutStore interface {
	CreatePayout(ctx context.Context, rec payout.Record) (payout.Record, error)
	GetPayout(ctx context.Context, id string) (payout.Record, error)
	ListPayoutsByPolicy(ctx context.Context, policyID string) ([]payout.Record, error)
}

// WalletStore persists user wallets.
type WalletStore interface {
	CreateWallet(ctx context.Context, w payout.Wallet) (payout.Wallet, error)
	// GetPrimaryWallet returns the user's primary wallet. When no wallet is
	// marked primary it returns another wallet of the user; ErrNotFound means
	// the user has no wallet at all.
	GetPrimaryWallet(ctx context.Context, userID string) (payout.Wallet, error)
}

// Store is the composite contract the pipeline is wired with.
type Store interface {
	PolicyStore
	EscrowStore
	PayoutStore
	WalletStore
}

// Transactional is implemented by stores that can wrap a function in a
// database transaction. The payout engine uses it to make the post-release
// writes atomic where the backend supports it.
type Transactional interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}
