package escrow

import (
	"fmt"
	"time"
)

// Status enumerates escrow lifecycle states. Transitions are one-way;
// FULFILLED and RELEASED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusFulfilled Status = "FULFILLED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusReleased
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusExpired || next == StatusCancelled
	case StatusActive:
		return next == StatusFulfilled || next == StatusReleased || next == StatusExpired || next == StatusCancelled
	default:
		return false
	}
}

// Model distinguishes the two escrow shapes in the identifier scheme.
type Model string

const (
	ModelPolicy Model = "POLICY"
	ModelUser   Model = "USER"
)

// Escrow is the custody row the payout engine releases against.
type Escrow struct {
	ID           string
	BlockchainID string
	PolicyID     string
	UserID       string
	Chain        string
	EscrowModel  Model
	Status       Status
	Amount       string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Releasable reports whether the escrow can still be released, with a reason
// when it cannot.
func (e Escrow) Releasable(now time.Time) error {
	if e.Status.Terminal() {
		return fmt.Errorf("escrow %s already %s", e.ID, e.Status)
	}
	if e.Status != StatusActive && e.Status != StatusPending {
		return fmt.Errorf("escrow %s is %s, not releasable", e.ID, e.Status)
	}
	if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
		return fmt.Errorf("escrow %s expired at %s", e.ID, e.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}
