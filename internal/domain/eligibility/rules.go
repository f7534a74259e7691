// Package eligibility decides when a nominee qualifies for a certificate.
package eligibility

import (
	"github.com/okian/awardtally/internal/domain/model"
)

// DefaultThreshold is the combined count that unlocks a certificate.
const DefaultThreshold = 1000

// Rule is the per-tier eligibility policy.
type Rule struct {
	Tier model.AwardTier
	// Threshold is the combined count (nominations + AGC-backed votes) at
	// which a nominee crosses. Ignored when CrossedAtCreation is set.
	Threshold int64
	// WinnerCount is how many top-ranked nominees win at close. 0 means the
	// tier is threshold-only.
	WinnerCount int
	// CrossedAtCreation marks tiers whose nominees are eligible on registration.
	CrossedAtCreation bool
}

// Crossed applies the rule to a combined count.
func (r Rule) Crossed(combined int64) bool {
	return r.CrossedAtCreation || combined >= r.Threshold
}

// DefaultRules returns the built-in rule per tier.
func DefaultRules() map[model.AwardTier]Rule {
	return map[model.AwardTier]Rule{
		model.TierCompetitive: {Tier: model.TierCompetitive, Threshold: DefaultThreshold, WinnerCount: 1},
		model.TierPlatinum:    {Tier: model.TierPlatinum, Threshold: DefaultThreshold, WinnerCount: 0},
		model.TierLifetime:    {Tier: model.TierLifetime, Threshold: DefaultThreshold, WinnerCount: 3, CrossedAtCreation: true},
	}
}
