package eligibility

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/tally"
)

// Book holds the eligibility states of one subcategory. States are mutated
// only through an Evaluator.
type Book struct {
	subcategoryID string
	tier          model.AwardTier

	mu     sync.RWMutex
	states map[string]*model.EligibilityState
}

// NewBook creates an empty book.
func NewBook(subcategoryID string, tier model.AwardTier) *Book {
	return &Book{
		subcategoryID: subcategoryID,
		tier:          tier,
		states:        make(map[string]*model.EligibilityState),
	}
}

// Tier returns the tier of the subcategory.
func (b *Book) Tier() model.AwardTier { return b.tier }

// Get returns a copy of the nominee's state.
func (b *Book) Get(nomineeID string) (model.EligibilityState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.states[nomineeID]
	if !ok {
		return model.EligibilityState{}, false
	}
	return *s, true
}

// All returns copies of every state, sorted by nominee id.
func (b *Book) All() []model.EligibilityState {
	b.mu.RLock()
	out := make([]model.EligibilityState, 0, len(b.states))
	for _, s := range b.states {
		out = append(out, *s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].NomineeID < out[j].NomineeID })
	return out
}

// Winners returns the nominee ids currently marked as winners, sorted.
func (b *Book) Winners() []string {
	var out []string
	for _, s := range b.All() {
		if s.IsWinner {
			out = append(out, s.NomineeID)
		}
	}
	return out
}

// Evaluator applies tier rules to books.
type Evaluator struct {
	rules map[model.AwardTier]Rule
}

// NewEvaluator builds an evaluator from the default rules plus overrides.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	for tier, r := range e.rules {
		if r.Threshold < 0 || r.WinnerCount < 0 {
			return nil, fmt.Errorf("%w: %s threshold=%d winners=%d", ErrInvalidRule, tier, r.Threshold, r.WinnerCount)
		}
	}
	return e, nil
}

// Rule returns the rule for tier.
func (e *Evaluator) Rule(tier model.AwardTier) Rule {
	return e.rules[tier]
}

// Register creates the nominee's state. Nominees of a tier that is crossed
// at creation are eligible immediately. Registering twice is a no-op.
func (e *Evaluator) Register(b *Book, nomineeID string) model.EligibilityTransition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.states[nomineeID]; ok {
		return model.EligibilityTransition{Before: *s, After: *s}
	}

	rule := e.rules[b.tier]
	s := &model.EligibilityState{
		NomineeID:        nomineeID,
		SubcategoryID:    b.subcategoryID,
		Tier:             b.tier,
		CrossedThreshold: rule.Crossed(0),
	}
	b.states[nomineeID] = s
	return model.EligibilityTransition{
		Before: model.EligibilityState{NomineeID: nomineeID, SubcategoryID: b.subcategoryID, Tier: b.tier},
		After:  *s,
	}
}

// OnFactRecorded applies one counted fact. Votes count only when AGC-backed.
// Crossing is sticky on increments; a retraction re-evaluates it.
func (e *Evaluator) OnFactRecorded(b *Book, nomineeID string, kind model.FactKind, agcBacked bool, delta int) (model.EligibilityTransition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[nomineeID]
	if !ok {
		return model.EligibilityTransition{}, fmt.Errorf("%w: %s", ErrUnknownNominee, nomineeID)
	}
	before := *s

	if kind == model.KindVote && !agcBacked {
		return model.EligibilityTransition{Before: before, After: before}, nil
	}

	d := int64(delta)
	switch kind {
	case model.KindNomination:
		if s.NominationCount+d < 0 {
			return model.EligibilityTransition{}, ErrNegativeCount
		}
		s.NominationCount += d
	default:
		if s.AGCBackedVoteCount+d < 0 {
			return model.EligibilityTransition{}, ErrNegativeCount
		}
		s.AGCBackedVoteCount += d
	}
	s.CombinedCount = s.NominationCount + s.AGCBackedVoteCount

	rule := e.rules[b.tier]
	if delta > 0 {
		s.CrossedThreshold = s.CrossedThreshold || rule.Crossed(s.CombinedCount)
	} else {
		s.CrossedThreshold = rule.Crossed(s.CombinedCount)
	}
	s.Version++

	return model.EligibilityTransition{Before: before, After: *s}, nil
}

// Recompute re-derives the crossed flag from the current counters. Repeating
// it has no further effect.
func (e *Evaluator) Recompute(b *Book, nomineeID string) (model.EligibilityTransition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[nomineeID]
	if !ok {
		return model.EligibilityTransition{}, fmt.Errorf("%w: %s", ErrUnknownNominee, nomineeID)
	}
	before := *s
	s.CombinedCount = s.NominationCount + s.AGCBackedVoteCount
	crossed := e.rules[b.tier].Crossed(s.CombinedCount)
	if crossed != s.CrossedThreshold || before.CombinedCount != s.CombinedCount {
		s.CrossedThreshold = crossed
		s.Version++
	}
	return model.EligibilityTransition{Before: before, After: *s}, nil
}

// Winners picks the winning nominee ids from ranked without touching any
// book: positive scores only, in ranking order, up to the tier's winner count.
func (e *Evaluator) Winners(tier model.AwardTier, ranked []tally.Entry) []string {
	rule := e.rules[tier]
	if rule.WinnerCount == 0 {
		return nil
	}
	var out []string
	for _, entry := range ranked {
		if len(out) >= rule.WinnerCount || entry.WeightedScore <= 0 {
			break
		}
		out = append(out, entry.NomineeID)
	}
	return out
}

// SelectWinners marks the winners of ranked in b. Nominees already marked
// stay marked.
func (e *Evaluator) SelectWinners(b *Book, ranked []tally.Entry) []model.EligibilityTransition {
	return e.MarkWinners(b, e.Winners(b.tier, ranked))
}

// MarkWinners flags the given nominees as winners, skipping ids the book
// does not know. It also restores winners from a persisted closure.
func (e *Evaluator) MarkWinners(b *Book, nomineeIDs []string) []model.EligibilityTransition {
	if len(nomineeIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.EligibilityTransition, 0, len(nomineeIDs))
	for _, id := range nomineeIDs {
		s, ok := b.states[id]
		if !ok {
			continue
		}
		before := *s
		if !s.IsWinner {
			s.IsWinner = true
			s.Version++
		}
		out = append(out, model.EligibilityTransition{Before: before, After: *s})
	}
	return out
}
