// Package wallet provisions custodial user wallets: a keypair generated on
// the selected chain, the secret sealed at rest, and the primary-wallet row
// persisted for the payout path to pay into.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/storage"
	"github.com/triggerr/core/internal/chain"
	"github.com/triggerr/core/internal/crypto"
	"github.com/triggerr/core/pkg/logger"
)

// Service creates and looks up user wallets.
type Service struct {
	store    storage.WalletStore
	registry *chain.Registry
	vault    *crypto.Vault
	log      *logger.Logger
}

// New constructs a wallet service.
func New(store storage.WalletStore, registry *chain.Registry, vault *crypto.Vault, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{store: store, registry: registry, vault: vault, log: log}
}

// Provision returns the user's primary wallet, creating one on the given
// chain when none exists. The raw secret is sealed under the wallet address
// and never leaves this function.
func (s *Service) Provision(ctx context.Context, userID, chainTag string) (payout.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return payout.Wallet{}, fmt.Errorf("user id is required")
	}

	existing, err := s.store.GetPrimaryWallet(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return payout.Wallet{}, err
	}

	svc, ok := s.registry.Get(chainTag)
	if !ok {
		return payout.Wallet{}, fmt.Errorf("no chain service for provider %q", chainTag)
	}
	generated, err := svc.GenerateNewWallet(ctx)
	if err != nil {
		return payout.Wallet{}, fmt.Errorf("generate wallet: %w", err)
	}

	sealed, err := s.vault.Encrypt(generated.Address, generated.Secret)
	if err != nil {
		return payout.Wallet{}, fmt.Errorf("seal wallet secret: %w", err)
	}

	created, err := s.store.CreateWallet(ctx, payout.Wallet{
		UserID:          userID,
		Address:         generated.Address,
		Chain:           svc.Chain(),
		WalletType:      "custodial",
		EncryptedSecret: sealed,
		IsPrimary:       true,
	})
	if err != nil {
		return payout.Wallet{}, fmt.Errorf("persist wallet: %w", err)
	}

	s.log.WithField("user_id", userID).
		WithField("address", created.Address).
		WithField("chain", created.Chain).
		Info("wallet provisioned")
	return created, nil
}

// Lookup returns the user's primary wallet with its live on-chain account
// state.
func (s *Service) Lookup(ctx context.Context, userID string) (payout.Wallet, chain.AccountInfo, error) {
	w, err := s.store.GetPrimaryWallet(ctx, strings.TrimSpace(userID))
	if err != nil {
		return payout.Wallet{}, chain.AccountInfo{}, err
	}
	svc, ok := s.registry.Get(w.Chain)
	if !ok {
		return w, chain.AccountInfo{}, nil
	}
	info, err := svc.GetAccountInfo(ctx, w.Address)
	if err != nil {
		// The row is still useful without live balance.
		s.log.WithError(err).WithField("address", w.Address).Warn("account info lookup failed")
		return w, chain.AccountInfo{Address: w.Address}, nil
	}
	return w, info, nil
}

// Signer unseals the wallet secret for chain calls that must be signed by the
// wallet owner (escrow creation and fulfillment).
func (s *Service) Signer(ctx context.Context, userID string) (chain.Signer, error) {
	w, err := s.store.GetPrimaryWallet(ctx, strings.TrimSpace(userID))
	if err != nil {
		return chain.Signer{}, err
	}
	secret, err := s.vault.Decrypt(w.Address, w.EncryptedSecret)
	if err != nil {
		return chain.Signer{}, fmt.Errorf("unseal wallet secret: %w", err)
	}
	return chain.Signer{Address: w.Address, Secret: secret}, nil
}
