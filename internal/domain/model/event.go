package model

import (
	"time"

	"github.com/google/uuid"
)

// Reasons a nominee becomes certificate eligible.
const (
	ReasonThresholdCrossed = "threshold_crossed"
	ReasonWinnerSelected   = "winner_selected"
	ReasonLifetimeTier     = "lifetime_tier"
)

// EligibilityState is the per-nominee derived eligibility record.
type EligibilityState struct {
	NomineeID          string    `json:"nominee_id"`
	SubcategoryID      string    `json:"subcategory_id"`
	Tier               AwardTier `json:"tier"`
	NominationCount    int64     `json:"nomination_count"`
	AGCBackedVoteCount int64     `json:"agc_backed_vote_count"`
	CombinedCount      int64     `json:"combined_count"`
	CrossedThreshold   bool      `json:"crossed_threshold"`
	IsWinner           bool      `json:"is_winner"`
	Version            int64     `json:"version"`
}

// CertificateEligible reports whether the nominee qualifies for a certificate.
func (s EligibilityState) CertificateEligible() bool {
	return s.CrossedThreshold || s.IsWinner
}

// EligibilityTransition is the before/after pair produced by one evaluator step.
type EligibilityTransition struct {
	Before EligibilityState
	After  EligibilityState
}

// Reasons lists the eligibility edges this transition crossed.
func (t EligibilityTransition) Reasons() []string {
	var out []string
	if !t.Before.CrossedThreshold && t.After.CrossedThreshold {
		out = append(out, ReasonThresholdCrossed)
	}
	if !t.Before.IsWinner && t.After.IsWinner {
		out = append(out, ReasonWinnerSelected)
	}
	return out
}

// CertificateEvent is published when a nominee gains eligibility.
type CertificateEvent struct {
	EventID       string    `json:"event_id"`
	NomineeID     string    `json:"nominee_id"`
	SubcategoryID string    `json:"subcategory_id"`
	Tier          AwardTier `json:"tier"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewCertificateEvent stamps a fresh event id.
func NewCertificateEvent(s EligibilityState, reason string, at time.Time) CertificateEvent {
	return CertificateEvent{
		EventID:       uuid.NewString(),
		NomineeID:     s.NomineeID,
		SubcategoryID: s.SubcategoryID,
		Tier:          s.Tier,
		Reason:        reason,
		OccurredAt:    at.UTC(),
	}
}

// EventsFor converts a transition into the events it implies.
func EventsFor(t EligibilityTransition, at time.Time) []CertificateEvent {
	reasons := t.Reasons()
	if len(reasons) == 0 {
		return nil
	}
	out := make([]CertificateEvent, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, NewCertificateEvent(t.After, r, at))
	}
	return out
}
