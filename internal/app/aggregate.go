package service

import (
	"sync"

	"github.com/okian/awardtally/internal/domain/eligibility"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/tally"
	"github.com/okian/awardtally/internal/domain/weights"
)

// aggregate is the unit of serialization: one subcategory's board and book.
// Counter updates commute and are serialized by mu alone; version moves only
// on structural changes (registration, close) that can invalidate a
// validation made before the ledger call.
type aggregate struct {
	sub     model.Subcategory
	profile weights.Profile
	board   *tally.Board
	book    *eligibility.Book

	mu      sync.Mutex
	version int64
	closed  bool
	winners []string
}

func newAggregate(sub model.Subcategory, profile weights.Profile) *aggregate {
	return &aggregate{
		sub:     sub,
		profile: profile,
		board:   tally.NewBoard(profile),
		book:    eligibility.NewBook(sub.ID, sub.Tier),
	}
}

// state returns the current version and closed flag.
func (a *aggregate) state() (version int64, closed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version, a.closed
}

// register puts a nominee on the board and in the book. Caller holds mu.
func (a *aggregate) register(e *eligibility.Evaluator, nomineeID string) model.EligibilityTransition {
	a.board.AddNominee(nomineeID)
	tr := e.Register(a.book, nomineeID)
	a.version++
	return tr
}

// apply records f on the board and in the book, undoing the board change if
// the book refuses it. Caller holds mu.
func (a *aggregate) apply(e *eligibility.Evaluator, f model.Fact) (model.EligibilityTransition, error) { //nolint:gocritic // hugeParam
	if err := a.board.RecordFact(f.NomineeID, f.Role, f.Kind, f.Delta); err != nil {
		return model.EligibilityTransition{}, err
	}
	tr, err := e.OnFactRecorded(a.book, f.NomineeID, f.Kind, f.AGCBacked, f.Delta)
	if err != nil {
		_ = a.board.RecordFact(f.NomineeID, f.Role, f.Kind, -f.Delta)
		return model.EligibilityTransition{}, err
	}
	return tr, nil
}

func (a *aggregate) closedWinners() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.winners...)
}
