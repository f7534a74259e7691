// Package repository persists facts, nominees, and closures.
//
// The fact log is append-only and ordered by Seq. Its unique txn index is the
// authority on "one AGC transaction backs at most one fact".
package repository

import (
	"context"

	"github.com/okian/awardtally/internal/domain/model"
)

// Store provides durable access to the fact log.
type Store interface {
	// Append assigns f.Seq and persists f. Returns ErrDuplicateTxn when
	// f.TxnID is already bound and ErrAlreadyRetracted when f retracts a fact
	// that has a retraction already.
	Append(ctx context.Context, f *model.Fact) error
	// Remove deletes a fact. Used only to compensate an append whose
	// aggregate commit failed.
	Remove(ctx context.Context, factID string) error

	// Fact returns a fact by id or ErrNotFound.
	Fact(ctx context.Context, id string) (model.Fact, error)
	// FactByTxn returns the fact bound to txnID, if any.
	FactByTxn(ctx context.Context, txnID string) (model.Fact, bool, error)
	// RetractionOf returns the retraction of factID, if any.
	RetractionOf(ctx context.Context, factID string) (model.Fact, bool, error)
	// Facts returns every fact with Seq > afterSeq in Seq order.
	Facts(ctx context.Context, afterSeq int64) ([]model.Fact, error)
	// Count returns the number of stored facts.
	Count(ctx context.Context) (int, error)

	SaveNominee(ctx context.Context, n model.Nominee) error
	Nominees(ctx context.Context) ([]model.Nominee, error)

	// SaveClosure stores a closure once; a second save for the same
	// subcategory returns ErrClosureExists.
	SaveClosure(ctx context.Context, c model.Closure) error
	Closure(ctx context.Context, subcategoryID string) (model.Closure, bool, error)
	Closures(ctx context.Context) ([]model.Closure, error)

	Close() error
}
