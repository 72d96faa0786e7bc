package postgres

import (
	"time"

	"github.com/triggerr/core/internal/app/domain/payout"
)

func payoutRecordFixture() payout.Record {
	now := time.Now().UTC()
	return payout.Record{
		ID:          "pay-1",
		PolicyID:    "p1",
		EscrowID:    "e1",
		Amount:      "250.00",
		Status:      payout.StatusCompleted,
		Reason:      "test",
		TxHash:      "0xabc",
		Chain:       "PAYGO",
		Recipient:   "0xwallet",
		ProcessedAt: &now,
	}
}
