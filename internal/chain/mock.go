package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Mock is an in-memory chain service for tests and for running without a
// settlement node. Every submission succeeds unless a failure is injected.
type Mock struct {
	mu       sync.Mutex
	chain    string
	escrows  map[string]string // blockchainID -> state
	txSeq    int
	FailWith error
	// FixedHash, when set, is returned for every submission.
	FixedHash string
}

// NewMock creates a mock service for the given chain tag.
func NewMock(chainTag string) *Mock {
	return &Mock{
		chain:   normalizeTag(chainTag),
		escrows: make(map[string]string),
	}
}

var _ Service = (*Mock)(nil)

func (m *Mock) Chain() string { return m.chain }

func (m *Mock) GenerateNewWallet(_ context.Context) (Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Address: "0x" + hex.EncodeToString(pub), Secret: priv}, nil
}

func (m *Mock) GetAccountInfo(_ context.Context, address string) (AccountInfo, error) {
	return AccountInfo{Address: address, Balance: "1000.00", Nonce: 1}, nil
}

func (m *Mock) CreateEscrow(_ context.Context, params EscrowParams, _ Signer) (TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return TxResult{}, m.FailWith
	}
	m.escrows[params.BlockchainID] = "ACTIVE"
	return m.txResult(), nil
}

func (m *Mock) FulfillEscrow(_ context.Context, blockchainID string, _ Signer) (TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return TxResult{}, m.FailWith
	}
	m.escrows[blockchainID] = "FULFILLED"
	return m.txResult(), nil
}

func (m *Mock) ReleaseEscrow(_ context.Context, blockchainID, _ string) (TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return TxResult{}, m.FailWith
	}
	m.escrows[blockchainID] = "RELEASED"
	return m.txResult(), nil
}

func (m *Mock) GetTransactionStatus(_ context.Context, hash string) (TxStatus, error) {
	return TxStatus{Hash: hash, Status: "success", Confirmed: true}, nil
}

// EscrowState reports the mock-side state for assertions.
func (m *Mock) EscrowState(blockchainID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrows[blockchainID]
}

func (m *Mock) txResult() TxResult {
	if m.FixedHash != "" {
		return TxResult{Hash: m.FixedHash, Status: "success"}
	}
	m.txSeq++
	return TxResult{Hash: fmt.Sprintf("0xmock%06d", m.txSeq), Status: "success"}
}
