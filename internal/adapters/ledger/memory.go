package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
)

type wallet struct {
	amount   int64
	purpose  model.FactKind // empty accepts any purpose
	consumed *Consumed
}

// MemoryLedger is an in-process ledger for development and tests.
type MemoryLedger struct {
	mu          sync.Mutex
	txns        map[string]*wallet
	autoFund    int64
	latency     time.Duration
	unavailable atomic.Bool
	calls       atomic.Int64
}

// MemoryOption configures a MemoryLedger.
type MemoryOption func(*MemoryLedger)

// WithAutoFund makes unknown txn ids valid with the given amount and any purpose.
func WithAutoFund(amount int64) MemoryOption {
	return func(l *MemoryLedger) {
		if amount > 0 {
			l.autoFund = amount
		}
	}
}

// WithLatency delays every call, honouring the caller's deadline.
func WithLatency(d time.Duration) MemoryOption {
	return func(l *MemoryLedger) {
		if d > 0 {
			l.latency = d
		}
	}
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	l := &MemoryLedger{txns: make(map[string]*wallet)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fund registers a wallet transaction. An empty purpose accepts either kind.
func (l *MemoryLedger) Fund(txnID string, amount int64, purpose model.FactKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txns[txnID] = &wallet{amount: amount, purpose: purpose}
}

// SetUnavailable makes every call fail with ErrUnavailable.
func (l *MemoryLedger) SetUnavailable(down bool) { l.unavailable.Store(down) }

// Calls reports how many times VerifyAndConsume was invoked.
func (l *MemoryLedger) Calls() int64 { return l.calls.Load() }

func (l *MemoryLedger) VerifyAndConsume(ctx context.Context, txnID string, p Purpose) (Consumed, error) {
	l.calls.Add(1)

	if l.latency > 0 {
		t := time.NewTimer(l.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Consumed{}, ErrUnavailable
		case <-t.C:
		}
	}
	if l.unavailable.Load() {
		return Consumed{}, ErrUnavailable
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.txns[txnID]
	if !ok {
		if l.autoFund == 0 {
			return Consumed{}, ErrUnknownTransaction
		}
		w = &wallet{amount: l.autoFund}
		l.txns[txnID] = w
	}

	if w.consumed != nil {
		if w.consumed.Purpose != p.Kind {
			return Consumed{}, ErrPurposeMismatch
		}
		return *w.consumed, nil
	}
	if w.purpose != "" && w.purpose != p.Kind {
		return Consumed{}, ErrPurposeMismatch
	}
	if w.amount < p.MinAmount {
		return Consumed{}, ErrInsufficientFunds
	}

	w.consumed = &Consumed{TxnID: txnID, Amount: w.amount, Purpose: p.Kind, ConsumedAt: time.Now().UTC()}
	return *w.consumed, nil
}
