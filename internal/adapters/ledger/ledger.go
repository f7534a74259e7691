// Package ledger talks to the AGC wallet ledger that backs paid votes and
// nominations.
package ledger

import (
	"context"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
)

// Purpose describes what a transaction is being consumed for.
type Purpose struct {
	Kind      model.FactKind `json:"purpose"`
	MinAmount int64          `json:"min_amount"`
}

// Consumed is the ledger's receipt for a consumed transaction.
type Consumed struct {
	TxnID      string         `json:"txn_id"`
	Amount     int64          `json:"amount"`
	Purpose    model.FactKind `json:"purpose"`
	ConsumedAt time.Time      `json:"consumed_at"`
}

// Ledger verifies and consumes AGC transactions.
//
// VerifyAndConsume is idempotent: replaying a successful call for the same
// txn and purpose returns the original receipt.
type Ledger interface {
	VerifyAndConsume(ctx context.Context, txnID string, p Purpose) (Consumed, error)
}
