package simulate

import (
	"errors"
	"fmt"
)

// scoreTolerance absorbs float noise between scores the service ranks as tied.
const scoreTolerance = 1e-6

// verifyTally checks that a tally is densely ranked from 1 by non-increasing
// score and names each nominee once.
func verifyTally(entries []tallyEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if _, dup := seen[e.NomineeID]; dup {
			return fmt.Errorf("%w: %s appears twice in the tally", ErrInconsistent, e.NomineeID)
		}
		seen[e.NomineeID] = struct{}{}

		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("%w: first entry has rank %d", ErrInconsistent, e.Rank)
			}
			continue
		}
		prev := entries[i-1]
		switch {
		case e.WeightedScore > prev.WeightedScore+scoreTolerance:
			return fmt.Errorf("%w: %s (%.6f) ranked below %s (%.6f)",
				ErrInconsistent, e.NomineeID, e.WeightedScore, prev.NomineeID, prev.WeightedScore)
		case e.Rank == prev.Rank:
			if prev.WeightedScore-e.WeightedScore > scoreTolerance {
				return fmt.Errorf("%w: %s shares rank %d with a higher score", ErrInconsistent, e.NomineeID, e.Rank)
			}
		case e.Rank != prev.Rank+1:
			return fmt.Errorf("%w: rank jumps from %d to %d", ErrInconsistent, prev.Rank, e.Rank)
		}
	}
	return nil
}

// verifyAtMostOnce checks that no transaction id backed more than one
// accepted fact.
func verifyAtMostOnce(subs []submission) error {
	accepted := make(map[string]int)
	for _, s := range subs {
		if s.Outcome == OutcomeAccepted && s.Fact.AGCTxnID != "" {
			accepted[s.Fact.AGCTxnID]++
		}
	}
	var errs []error
	for txn, n := range accepted {
		if n > 1 {
			errs = append(errs, fmt.Errorf("%w: txn %s accepted %d times", ErrInconsistent, txn, n))
		}
	}
	return errors.Join(errs...)
}

// verifyCounts checks that each nominee's combined count moved by exactly
// the number of its accepted facts minus its retracted ones.
func verifyCounts(before, after map[string]eligibilityResponse, subs, retracted []submission) error {
	want := make(map[string]int64, len(before))
	for _, s := range subs {
		if s.Outcome == OutcomeAccepted {
			want[s.Fact.NomineeID]++
		}
	}
	for _, s := range retracted {
		want[s.Fact.NomineeID]--
	}

	var errs []error
	for id, b := range before {
		a, ok := after[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: no eligibility for %s after the run", ErrInconsistent, id))
			continue
		}
		if got := a.CombinedCount - b.CombinedCount; got != want[id] {
			errs = append(errs, fmt.Errorf("%w: %s combined count moved by %d, want %d", ErrInconsistent, id, got, want[id]))
		}
	}
	return errors.Join(errs...)
}
