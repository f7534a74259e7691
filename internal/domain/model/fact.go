package model

import "time"

// FactKind distinguishes nominations from votes.
type FactKind string

const (
	KindNomination FactKind = "nomination"
	KindVote       FactKind = "vote"
)

// Fact is one recorded nomination or vote, or the retraction of one.
// Facts are append-only; a retraction is a new fact with Delta -1.
type Fact struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"seq"`
	Kind           FactKind  `json:"kind"`
	NomineeID      string    `json:"nominee_id"`
	SubcategoryID  string    `json:"subcategory_id"`
	Role           VoterRole `json:"role"`
	TxnID          string    `json:"txn_id,omitempty"`
	AGCBacked      bool      `json:"agc_backed"`
	WeightEligible bool      `json:"weight_eligible"`
	Delta          int       `json:"delta"`
	RetractsID     string    `json:"retracts_id,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// IsRetraction reports whether f undoes an earlier fact.
func (f Fact) IsRetraction() bool {
	return f.RetractsID != ""
}

// CountsTowardThreshold reports whether f feeds the combined count.
// Every nomination counts; votes count only when AGC-backed.
func (f Fact) CountsTowardThreshold() bool {
	return f.Kind == KindNomination || f.AGCBacked
}

// Retraction builds the compensating fact for f.
func (f Fact) Retraction(id string, at time.Time) Fact {
	return Fact{
		ID:             id,
		Kind:           f.Kind,
		NomineeID:      f.NomineeID,
		SubcategoryID:  f.SubcategoryID,
		Role:           f.Role,
		AGCBacked:      f.AGCBacked,
		WeightEligible: f.WeightEligible,
		Delta:          -1,
		RetractsID:     f.ID,
		RecordedAt:     at,
	}
}
