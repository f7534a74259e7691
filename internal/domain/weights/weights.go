// Package weights holds the per-tier role weight tables.
//
// A Registry is built once at startup and never mutated. A role listed in a
// tier with weight 0 is permitted to vote (its AGC-backed votes feed the
// eligibility count) but does not move the weighted score. A role absent
// from a tier's table is rejected for that tier.
package weights

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/awardtally/internal/domain/model"
)

// SumTolerance is the allowed deviation of a tier's weight sum from 1.0.
const SumTolerance = 1e-6

// Profile is the role -> weight table of one tier.
type Profile struct {
	Tier    model.AwardTier
	weights map[model.VoterRole]float64
}

// Weight returns the role's weight, 0 when absent.
func (p Profile) Weight(r model.VoterRole) float64 {
	return p.weights[r]
}

// Permits reports whether the role may vote or nominate in this tier.
func (p Profile) Permits(r model.VoterRole) bool {
	_, ok := p.weights[r]
	return ok
}

// WeightEligible reports whether the role's votes move the weighted score.
func (p Profile) WeightEligible(r model.VoterRole) bool {
	return p.weights[r] > 0
}

// WeightedRoles returns the roles with a positive weight, sorted by name.
func (p Profile) WeightedRoles() []model.VoterRole {
	out := make([]model.VoterRole, 0, len(p.weights))
	for r, w := range p.weights {
		if w > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry maps every tier to its profile.
type Registry struct {
	profiles map[model.AwardTier]Profile
}

// NewRegistry validates and copies tables. Every tier must be present and
// each must sum to 1.0 within SumTolerance.
func NewRegistry(tables map[model.AwardTier]map[model.VoterRole]float64) (*Registry, error) {
	reg := &Registry{profiles: make(map[model.AwardTier]Profile, len(model.Tiers))}

	for tier := range tables {
		if _, err := model.ParseTier(string(tier)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
	}

	for _, tier := range model.Tiers {
		table, ok := tables[tier]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTier, tier)
		}

		cp := make(map[model.VoterRole]float64, len(table))
		var sum float64
		for role, w := range table {
			if _, err := model.ParseRole(string(role)); err != nil {
				return nil, fmt.Errorf("%w: %q in tier %s", ErrUnknownRole, role, tier)
			}
			if w < 0 || math.IsNaN(w) {
				return nil, fmt.Errorf("%w: %s/%s=%v", ErrNegativeWeight, tier, role, w)
			}
			cp[role] = w
			sum += w
		}
		if math.Abs(sum-1.0) > SumTolerance {
			return nil, fmt.Errorf("%w: tier %s sums to %.6f", ErrWeightSum, tier, sum)
		}

		reg.profiles[tier] = Profile{Tier: tier, weights: cp}
	}

	return reg, nil
}

// WeightsFor returns the profile for tier.
func (r *Registry) WeightsFor(tier model.AwardTier) (Profile, error) {
	p, ok := r.profiles[tier]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

// FromConfig parses a tier -> role -> weight map keyed by names, as read from
// configuration. An empty map yields the default tables.
func FromConfig(raw map[string]map[string]float64) (*Registry, error) {
	if len(raw) == 0 {
		return NewRegistry(DefaultTables())
	}

	tables := make(map[model.AwardTier]map[model.VoterRole]float64, len(raw))
	for tierName, roles := range raw {
		tier, err := model.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
		}
		table := make(map[model.VoterRole]float64, len(roles))
		for roleName, w := range roles {
			role, err := model.ParseRole(roleName)
			if err != nil {
				return nil, fmt.Errorf("%w: %q in tier %s", ErrUnknownRole, roleName, tier)
			}
			table[role] = w
		}
		tables[tier] = table
	}
	return NewRegistry(tables)
}

// DefaultTables returns the built-in weight tables.
func DefaultTables() map[model.AwardTier]map[model.VoterRole]float64 {
	return map[model.AwardTier]map[model.VoterRole]float64{
		model.TierCompetitive: {
			model.RolePublic:     0.40,
			model.RoleJudge:      0.50,
			model.RoleBOT:        0.025,
			model.RoleBOA:        0.025,
			model.RoleAmbassador: 0.025,
			model.RoleCVO:        0.025,
			model.RoleVolunteer:  0,
			model.RoleAdmin:      0,
		},
		model.TierPlatinum: {
			model.RoleJudge:      0.50,
			model.RoleBOT:        0.125,
			model.RoleBOA:        0.125,
			model.RoleAmbassador: 0.125,
			model.RoleCVO:        0.125,
			model.RolePublic:     0,
			model.RoleVolunteer:  0,
			model.RoleAdmin:      0,
		},
		model.TierLifetime: {
			model.RoleJudge:      0.40,
			model.RoleBOT:        0.20,
			model.RoleBOA:        0.20,
			model.RoleAmbassador: 0.10,
			model.RoleCVO:        0.10,
			model.RoleVolunteer:  0,
			model.RoleAdmin:      0,
		},
	}
}
