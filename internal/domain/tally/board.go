// Package tally keeps the per-subcategory weighted vote counters.
//
// Ordering: score DESC, then nominee id ASC (deterministic). Equal scores
// share a rank and ranks are dense (1, 1, 2).
package tally

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/weights"
	"github.com/okian/awardtally/pkg/metrics"
)

// scoreScale rounds scores before comparing them so that sums taken in
// different orders still tie.
const scoreScale = 1e9

// Entry is one ranked nominee.
type Entry struct {
	NomineeID     string
	WeightedScore float64
	Rank          int
	Counts        map[model.VoterRole]int64
}

// Snapshot is an immutable ranked view of a board.
type Snapshot struct {
	Entries []Entry
	BuiltAt time.Time
	rankOf  map[string]int
}

// Rank returns the nominee's rank, or 0 if it is not on the board.
func (s *Snapshot) Rank(nomineeID string) int {
	return s.rankOf[nomineeID]
}

// Board owns the raw per-role counters of one subcategory. Raw counters are
// mutated only through its methods.
type Board struct {
	profile weights.Profile

	mu     sync.RWMutex
	raw    map[string]map[model.VoterRole]int64
	totals map[model.VoterRole]int64

	dirty     atomic.Bool
	rebuildMu sync.Mutex
	snapshot  atomic.Pointer[Snapshot]
}

// NewBoard creates an empty board scored with profile.
func NewBoard(profile weights.Profile) *Board {
	b := &Board{
		profile: profile,
		raw:     make(map[string]map[model.VoterRole]int64),
		totals:  make(map[model.VoterRole]int64),
	}
	b.snapshot.Store(&Snapshot{BuiltAt: time.Now(), rankOf: map[string]int{}})
	return b
}

// AddNominee puts a nominee on the board with zero counts.
func (b *Board) AddNominee(nomineeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.raw[nomineeID]; ok {
		return
	}
	b.raw[nomineeID] = make(map[model.VoterRole]int64)
	b.dirty.Store(true)
}

// RecordFact applies one fact. Only weight-eligible votes move the counters;
// everything else is accepted and ignored here.
func (b *Board) RecordFact(nomineeID string, role model.VoterRole, kind model.FactKind, delta int) error {
	if delta != 1 && delta != -1 {
		return ErrInvalidDelta
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	counts, ok := b.raw[nomineeID]
	if !ok {
		counts = make(map[model.VoterRole]int64)
		b.raw[nomineeID] = counts
		b.dirty.Store(true)
	}

	if kind != model.KindVote || !b.profile.WeightEligible(role) {
		return nil
	}

	d := int64(delta)
	if counts[role]+d < 0 || b.totals[role]+d < 0 {
		return ErrNegativeCount
	}
	counts[role] += d
	b.totals[role] += d
	b.dirty.Store(true)
	return nil
}

// WeightedScore computes Σ_role raw/total × weight for one nominee.
// Roles with no votes in the subcategory contribute 0.
func (b *Board) WeightedScore(nomineeID string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scoreLocked(b.raw[nomineeID])
}

func (b *Board) scoreLocked(counts map[model.VoterRole]int64) float64 {
	var score float64
	for role, n := range counts {
		total := b.totals[role]
		if total == 0 || n == 0 {
			continue
		}
		score += float64(n) / float64(total) * b.profile.Weight(role)
	}
	return score
}

// Counts returns a copy of the nominee's raw counters.
func (b *Board) Counts(nomineeID string) map[model.VoterRole]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyCounts(b.raw[nomineeID])
}

// Totals returns a copy of the subcategory-wide counters.
func (b *Board) Totals() map[model.VoterRole]int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyCounts(b.totals)
}

// Len returns the number of nominees on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.raw)
}

// Dirty reports whether writes happened since the last snapshot.
func (b *Board) Dirty() bool { return b.dirty.Load() }

// Snapshot returns the latest ranked view, rebuilding it first if dirty.
func (b *Board) Snapshot() *Snapshot {
	if b.dirty.Load() {
		b.rebuild(false)
	}
	return b.snapshot.Load()
}

// Rescore rebuilds the snapshot if the board is dirty, and reports whether it did.
func (b *Board) Rescore() bool {
	return b.rebuild(false)
}

// ForceRescore rebuilds the snapshot unconditionally.
func (b *Board) ForceRescore() *Snapshot {
	b.rebuild(true)
	return b.snapshot.Load()
}

func (b *Board) rebuild(force bool) bool {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	if !b.dirty.Swap(false) && !force {
		return false
	}

	start := time.Now()
	b.mu.RLock()
	entries := make([]Entry, 0, len(b.raw))
	for id, counts := range b.raw {
		entries = append(entries, Entry{
			NomineeID:     id,
			WeightedScore: b.scoreLocked(counts),
			Counts:        copyCounts(counts),
		})
	}
	b.mu.RUnlock()

	sortEntries(entries)
	assignRanksWithTies(entries)

	rankOf := make(map[string]int, len(entries))
	for _, e := range entries {
		rankOf[e.NomineeID] = e.Rank
	}

	b.snapshot.Store(&Snapshot{Entries: entries, BuiltAt: time.Now(), rankOf: rankOf})
	metrics.RecordSnapshotRebuild(float64(time.Since(start).Microseconds()) / 1000)
	return true
}

func fixed(x float64) int64 {
	if math.IsNaN(x) {
		return 0
	}
	return int64(math.Round(x * scoreScale))
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := fixed(entries[i].WeightedScore), fixed(entries[j].WeightedScore)
		if a != b {
			return a > b
		}
		return entries[i].NomineeID < entries[j].NomineeID
	})
}

// assignRanksWithTies assigns dense ranks; equal scores share a rank.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	var prev int64
	for i := range entries {
		cur := fixed(entries[i].WeightedScore)
		if i == 0 || cur != prev {
			rank++
			prev = cur
		}
		entries[i].Rank = rank
	}
}

func copyCounts(in map[model.VoterRole]int64) map[model.VoterRole]int64 {
	out := make(map[model.VoterRole]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
