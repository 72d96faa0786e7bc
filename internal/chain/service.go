// Package chain provides the blockchain-agnostic escrow contract the payout
// engine depends on, a per-chain registry, and concrete clients.
package chain

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/triggerr/core/pkg/logger"
)

// Known provider tags. Unknown tags resolve to the registry's primary.
const (
	ProviderPayGo    = "PAYGO"
	ProviderEthereum = "ETHEREUM"
	ProviderBase     = "BASE"
	ProviderSolana   = "SOLANA"
)

// Wallet is a freshly generated keypair. The secret is raw; callers seal it
// before persisting.
type Wallet struct {
	Address string
	Secret  []byte
}

// AccountInfo describes one on-chain account.
type AccountInfo struct {
	Address string
	Balance string
	Nonce   uint64
}

// EscrowParams describes an escrow to create on chain.
type EscrowParams struct {
	InternalID   string
	BlockchainID string
	Amount       string
	Recipient    string
	ExpiresAt    time.Time
}

// TxResult is the immediate outcome of a submitted transaction.
type TxResult struct {
	Hash   string
	Status string
}

// Success reports whether the submission was accepted.
func (r TxResult) Success() bool {
	return strings.EqualFold(r.Status, "success")
}

// TxStatus is the confirmed state of a transaction looked up by hash.
type TxStatus struct {
	Hash      string
	Status    string
	Confirmed bool
}

// Signer authorizes state-changing calls. Services configured with an
// operator signer may accept the zero value.
type Signer struct {
	Address string
	Secret  []byte
}

// Service is the capability contract one chain adapter exposes.
type Service interface {
	// Chain returns the provider tag this service settles on.
	Chain() string
	GenerateNewWallet(ctx context.Context) (Wallet, error)
	GetAccountInfo(ctx context.Context, address string) (AccountInfo, error)
	CreateEscrow(ctx context.Context, params EscrowParams, signer Signer) (TxResult, error)
	FulfillEscrow(ctx context.Context, blockchainID string, signer Signer) (TxResult, error)
	// ReleaseEscrow moves the locked funds to the beneficiary. reason is
	// recorded with the release for auditability.
	ReleaseEscrow(ctx context.Context, blockchainID, reason string) (TxResult, error)
	GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error)
}

// Registry selects a chain service by provider tag at call time.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	primary  string
	log      *logger.Logger
}

// NewRegistry creates a registry whose primary tag backs unknown lookups.
func NewRegistry(primary string, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("chain-registry")
	}
	return &Registry{
		services: make(map[string]Service),
		primary:  normalizeTag(primary),
		log:      log,
	}
}

// Register adds a service under its own chain tag.
func (r *Registry) Register(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[normalizeTag(svc.Chain())] = svc
}

// Get resolves a provider tag; unknown or empty tags fall back to the primary.
func (r *Registry) Get(tag string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	normalized := normalizeTag(tag)
	if svc, ok := r.services[normalized]; ok {
		return svc, true
	}
	if normalized != r.primary {
		r.log.WithField("provider", normalized).
			WithField("fallback", r.primary).
			Debug("unknown chain provider tag, using primary")
	}
	svc, ok := r.services[r.primary]
	return svc, ok
}

// Primary returns the registry's primary provider tag.
func (r *Registry) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

func normalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
