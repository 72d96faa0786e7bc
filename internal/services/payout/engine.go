// Package payout implements the idempotent per-policy payout state machine:
// eligibility check, escrow release, durable payout record, and the policy and
// escrow status transitions.
package payout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/triggerr/core/internal/app/domain/escrow"
	payoutdomain "github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
	"github.com/triggerr/core/internal/app/storage"
	"github.com/triggerr/core/internal/chain"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

// Engine drives payouts for triggered policies. It never propagates a
// per-policy failure; the batch always completes with a summary.
type Engine struct {
	store    storage.Store
	registry *chain.Registry
	log      *logger.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// New constructs a payout engine.
func New(store storage.Store, registry *chain.Registry, log *logger.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = logger.NewDefault("payout-engine")
	}
	return &Engine{
		store:    store,
		registry: registry,
		log:      log,
		metrics:  m,
		clock:    time.Now,
	}
}

// WithClock injects a time source for tests.
func (e *Engine) WithClock(clock func() time.Time) { e.clock = clock }

// ProcessTriggeredPayouts runs the payout state machine for each policy id and
// returns the aggregate summary. It does not return an error: every failure is
// contained in the per-policy results.
func (e *Engine) ProcessTriggeredPayouts(ctx context.Context, policyIDs []string, reason, requestedBy string) payoutdomain.Summary {
	summary := payoutdomain.Summary{Results: make([]payoutdomain.PolicyResult, 0, len(policyIDs))}
	var total float64

	for _, policyID := range policyIDs {
		began := e.clock()
		result := e.processOne(ctx, policyID, reason, requestedBy)
		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.ProcessedCount++
			if amount, err := strconv.ParseFloat(result.Amount, 64); err == nil {
				total += amount
			}
			e.observe("completed", began)
		} else {
			summary.FailedCount++
			e.observe("failed", began)
		}
	}
	summary.TotalAmount = strconv.FormatFloat(total, 'f', 2, 64)

	e.log.WithField("processed", summary.ProcessedCount).
		WithField("failed", summary.FailedCount).
		WithField("total_amount", summary.TotalAmount).
		WithField("requested_by", requestedBy).
		Info("payout batch completed")
	return summary
}

func (e *Engine) observe(outcome string, began time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.PayoutsTotal.WithLabelValues(outcome).Inc()
	e.metrics.PayoutDuration.Observe(e.clock().Sub(began).Seconds())
}

// eligibility is everything loaded and validated before the chain call.
type eligibility struct {
	policy policy.Policy
	escrow escrow.Escrow
	wallet payoutdomain.Wallet
	amount string
}

func (e *Engine) processOne(ctx context.Context, policyID, reason, requestedBy string) payoutdomain.PolicyResult {
	fail := func(why string) payoutdomain.PolicyResult {
		e.log.WithField("policy_id", policyID).
			WithField("reason", why).
			Warn("payout rejected")
		return payoutdomain.PolicyResult{PolicyID: policyID, Success: false, Error: why}
	}

	// Step 1+2: load and eligibility-check. Failures are recorded, not thrown.
	elig, why := e.checkEligibility(ctx, policyID)
	if why != "" {
		return fail(why)
	}

	// Step 3: release the escrow on chain.
	svc, ok := e.registry.Get(elig.escrow.Chain)
	if !ok {
		return fail(fmt.Sprintf("no chain service for provider %q", elig.escrow.Chain))
	}
	tx, err := svc.ReleaseEscrow(ctx, elig.escrow.BlockchainID, reason)
	if err != nil || !tx.Success() {
		errMsg := "escrow release rejected"
		if err != nil {
			errMsg = err.Error()
		}
		e.recordFailedPayout(ctx, elig, reason, errMsg)
		return fail(fmt.Sprintf("release escrow %s: %s", elig.escrow.ID, errMsg))
	}

	// Steps 4-6: durable writes, transactional where the backend supports it.
	now := e.clock().UTC()
	record := payoutdomain.Record{
		PolicyID:    elig.policy.ID,
		EscrowID:    elig.escrow.ID,
		Amount:      elig.amount,
		Status:      payoutdomain.StatusCompleted,
		Reason:      reason,
		TxHash:      tx.Hash,
		Chain:       elig.escrow.Chain,
		Recipient:   elig.wallet.Address,
		Metadata:    map[string]string{"requestedBy": requestedBy},
		ProcessedAt: &now,
	}
	writes := func(store storage.Store) error {
		if _, err := store.CreatePayout(ctx, record); err != nil {
			return fmt.Errorf("write payout record: %w", err)
		}
		if _, err := store.TransitionPolicyStatus(ctx, elig.policy.ID, policy.StatusActive, policy.StatusClaimed); err != nil {
			return fmt.Errorf("claim policy: %w", err)
		}
		if _, err := store.TransitionEscrowStatus(ctx, elig.escrow.ID, elig.escrow.Status, escrow.StatusReleased); err != nil {
			return fmt.Errorf("release escrow row: %w", err)
		}
		return nil
	}
	if txStore, ok := e.store.(storage.Transactional); ok {
		err = txStore.WithinTx(ctx, writes)
	} else {
		err = writes(e.store)
	}
	if err != nil {
		// The chain release went through but persistence did not. A
		// transactional backend rolls the writes back so the next cycle
		// retries against the guarded transitions; the memory backend keeps
		// any write that succeeded before the failure.
		e.log.WithError(err).
			WithField("policy_id", policyID).
			WithField("tx_hash", tx.Hash).
			Error("payout persistence failed after release")
		return fail(fmt.Sprintf("persist payout: %v", err))
	}

	e.log.WithField("policy_id", elig.policy.ID).
		WithField("escrow_id", elig.escrow.ID).
		WithField("tx_hash", tx.Hash).
		WithField("amount", elig.amount).
		Info("payout completed")
	return payoutdomain.PolicyResult{
		PolicyID: elig.policy.ID,
		Success:  true,
		Amount:   elig.amount,
		TxHash:   tx.Hash,
		Reason:   reason,
	}
}

// checkEligibility loads the policy with its wallet and escrow and returns a
// rejection reason when any precondition fails.
func (e *Engine) checkEligibility(ctx context.Context, policyID string) (eligibility, string) {
	var elig eligibility

	p, err := e.store.GetPolicy(ctx, policyID)
	if err != nil {
		return elig, fmt.Sprintf("policy not found: %v", err)
	}
	elig.policy = p

	if p.Status != policy.StatusActive {
		return elig, fmt.Sprintf("policy status is %s, expected ACTIVE", p.Status)
	}

	if p.UserID == "" {
		return elig, "policy has no user wallet"
	}
	wallet, err := e.store.GetPrimaryWallet(ctx, p.UserID)
	if err != nil {
		return elig, fmt.Sprintf("no user wallet: %v", err)
	}
	elig.wallet = wallet

	esc, err := e.store.GetOpenEscrowForPolicy(ctx, policyID)
	if err != nil {
		return elig, fmt.Sprintf("no active or pending escrow: %v", err)
	}
	if err := esc.Releasable(e.clock()); err != nil {
		return elig, err.Error()
	}
	elig.escrow = esc

	amount := p.PayoutAmount
	if amount == "" {
		amount = esc.Amount
	}
	parsed, err := strconv.ParseFloat(amount, 64)
	if err != nil || parsed <= 0 {
		return elig, fmt.Sprintf("invalid payout amount %q", amount)
	}
	elig.amount = amount

	return elig, ""
}

// recordFailedPayout is best-effort: a failure to record is logged but leaves
// policy and escrow untouched, keeping the system retry-safe.
func (e *Engine) recordFailedPayout(ctx context.Context, elig eligibility, reason, errMsg string) {
	rec := payoutdomain.Record{
		PolicyID:     elig.policy.ID,
		EscrowID:     elig.escrow.ID,
		Amount:       elig.amount,
		Status:       payoutdomain.StatusFailed,
		Reason:       reason,
		ErrorMessage: errMsg,
		Chain:        elig.escrow.Chain,
		Recipient:    elig.wallet.Address,
	}
	if _, err := e.store.CreatePayout(ctx, rec); err != nil {
		e.log.WithError(err).
			WithField("policy_id", elig.policy.ID).
			Error("failed to record failed payout")
	}
}
