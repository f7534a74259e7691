// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// AwardTier is the program a category belongs to. It fixes the weight
// profile, the threshold, and the winner rule of every subcategory below it.
type AwardTier string

const (
	TierLifetime    AwardTier = "lifetime"
	TierCompetitive AwardTier = "competitive"
	TierPlatinum    AwardTier = "platinum"
)

// Tiers lists every tier in a stable order.
var Tiers = []AwardTier{TierLifetime, TierCompetitive, TierPlatinum}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (AwardTier, error) {
	t := AwardTier(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TierLifetime, TierCompetitive, TierPlatinum:
		return t, nil
	}
	return "", fmt.Errorf("unknown award tier %q", s)
}

// VoterRole classifies the actor behind a vote or nomination.
type VoterRole string

const (
	RolePublic     VoterRole = "public"
	RoleJudge      VoterRole = "judge"
	RoleBOT        VoterRole = "bot"
	RoleBOA        VoterRole = "boa"
	RoleAmbassador VoterRole = "ambassador"
	RoleVolunteer  VoterRole = "volunteer"
	RoleCVO        VoterRole = "cvo"
	RoleAdmin      VoterRole = "admin"
)

// Roles lists every role in a stable order.
var Roles = []VoterRole{
	RolePublic, RoleJudge, RoleBOT, RoleBOA,
	RoleAmbassador, RoleVolunteer, RoleCVO, RoleAdmin,
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (VoterRole, error) {
	r := VoterRole(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown voter role %q", s)
}

// IsInternal reports whether the role belongs to the program's own staff.
func (r VoterRole) IsInternal() bool {
	return r != RolePublic
}

// Category groups subcategories under one tier.
type Category struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Tier AwardTier `json:"tier"`
}

// Subcategory is the unit of competition: winners and tallies are per subcategory.
type Subcategory struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	Name       string    `json:"name"`
	Tier       AwardTier `json:"tier"`
}

// Nominee belongs to exactly one subcategory.
type Nominee struct {
	ID            string    `json:"id"`
	SubcategoryID string    `json:"subcategory_id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Closure records the winners chosen when a subcategory was closed.
type Closure struct {
	SubcategoryID string    `json:"subcategory_id"`
	Winners       []string  `json:"winners"`
	ClosedAt      time.Time `json:"closed_at"`
}
