package payout

import "time"

// Status enumerates payout record states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Record is the durable outcome of one payout attempt. The payout engine is
// the sole writer of these rows.
type Record struct {
	ID           string
	PolicyID     string
	EscrowID     string
	Amount       string
	Status       Status
	Reason       string
	TxHash       string
	ErrorMessage string
	Chain        string
	Recipient    string
	Metadata     map[string]string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PolicyResult is the per-policy outcome inside a batch summary.
type PolicyResult struct {
	PolicyID string
	Success  bool
	Amount   string
	TxHash   string
	Reason   string
	Error    string
}

// Summary aggregates one processTriggeredPayouts batch.
type Summary struct {
	ProcessedCount int
	FailedCount    int
	TotalAmount    string
	Results        []PolicyResult
}

// Wallet is the user wallet a payout pays into.
type Wallet struct {
	ID              string
	UserID          string
	Address         string
	Chain           string
	WalletType      string
	EncryptedSecret []byte
	KMSKeyID        string
	IsPrimary       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
