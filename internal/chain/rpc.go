package chain

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/triggerr/core/pkg/logger"
)

// RPCClient talks JSON-RPC to an escrow-capable settlement node. One instance
// serves one chain.
type RPCClient struct {
	chain      string
	rpcURL     string
	httpClient *http.Client
	networkID  uint32
	log        *logger.Logger
	nextID     int
}

// RPCConfig holds client configuration.
type RPCConfig struct {
	Chain     string
	RPCURL    string
	NetworkID uint32
	Timeout   time.Duration
}

// NewRPCClient creates a JSON-RPC chain client.
func NewRPCClient(cfg RPCConfig, log *logger.Logger) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	if cfg.Chain == "" {
		cfg.Chain = ProviderPayGo
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("chain-" + normalizeTag(cfg.Chain))
	}
	return &RPCClient{
		chain:      normalizeTag(cfg.Chain),
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		networkID:  cfg.NetworkID,
		log:        log,
		nextID:     1,
	}, nil
}

// rpcRequest represents a JSON-RPC request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// rpcResponse represents a JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call makes one RPC call and decodes the result into out.
func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	c.nextID++
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute rpc request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("decode rpc result: %w", err)
		}
	}
	return nil
}

// Chain returns the provider tag.
func (c *RPCClient) Chain() string { return c.chain }

// GenerateNewWallet creates a keypair locally; nothing is submitted on chain.
func (c *RPCClient) GenerateNewWallet(_ context.Context) (Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Wallet{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Wallet{
		Address: "0x" + hex.EncodeToString(pub),
		Secret:  priv,
	}, nil
}

// GetAccountInfo looks up balance and nonce for an address.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address string) (AccountInfo, error) {
	var result struct {
		Balance string `json:"balance"`
		Nonce   uint64 `json:"nonce"`
	}
	if err := c.call(ctx, "escrow_getAccount", []any{address}, &result); err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{Address: address, Balance: result.Balance, Nonce: result.Nonce}, nil
}

// CreateEscrow locks funds under the content-derived escrow identifier.
func (c *RPCClient) CreateEscrow(ctx context.Context, params EscrowParams, signer Signer) (TxResult, error) {
	args := map[string]any{
		"id":        params.BlockchainID,
		"amount":    params.Amount,
		"recipient": params.Recipient,
		"expiresAt": params.ExpiresAt.UTC().Unix(),
		"signer":    signer.Address,
	}
	return c.submit(ctx, "escrow_create", args)
}

// FulfillEscrow marks the escrow's condition satisfied.
func (c *RPCClient) FulfillEscrow(ctx context.Context, blockchainID string, signer Signer) (TxResult, error) {
	return c.submit(ctx, "escrow_fulfill", map[string]any{
		"id":     blockchainID,
		"signer": signer.Address,
	})
}

// ReleaseEscrow moves the locked funds to the beneficiary.
func (c *RPCClient) ReleaseEscrow(ctx context.Context, blockchainID, reason string) (TxResult, error) {
	return c.submit(ctx, "escrow_release", map[string]any{
		"id":     blockchainID,
		"reason": reason,
	})
}

func (c *RPCClient) submit(ctx context.Context, method string, args map[string]any) (TxResult, error) {
	var result struct {
		Hash   string `json:"hash"`
		Status string `json:"status"`
	}
	if err := c.call(ctx, method, []any{args}, &result); err != nil {
		return TxResult{}, err
	}
	return TxResult{Hash: result.Hash, Status: result.Status}, nil
}

// GetTransactionStatus looks up a submitted transaction.
func (c *RPCClient) GetTransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	var result struct {
		Status        string `json:"status"`
		Confirmations int    `json:"confirmations"`
	}
	if err := c.call(ctx, "escrow_getTransaction", []any{hash}, &result); err != nil {
		return TxStatus{}, err
	}
	return TxStatus{
		Hash:      hash,
		Status:    result.Status,
		Confirmed: result.Confirmations > 0,
	}, nil
}

// GetEscrowStatus is a placeholder: current settlement nodes do not expose an
// escrow status query, so callers must not rely on it for eligibility.
func (c *RPCClient) GetEscrowStatus(_ context.Context, _ string) (string, error) {
	return "UNKNOWN", nil
}

var _ Service = (*RPCClient)(nil)
