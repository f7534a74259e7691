// Package simulate drives a running tally service with generated nominations
// and votes, then checks that its tallies and counts agree with what was
// accepted.
package simulate

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/awardtally/internal/domain/types"
)

// Config holds configuration for a simulation run
type Config struct {
	BaseURL       string        // Base URL of the service
	SubcategoryID string        // Open subcategory the facts target
	Nominees      int           // Nominees registered for the run
	NomineePrefix string        // Prefix of generated nominee ids
	Facts         int           // Facts generated (votes plus nominations)
	VoteRatio     float64       // Share of facts that are votes
	DuplicateRate float64       // Share of facts resubmitted with a used txn id
	RetractRate   float64       // Share of accepted facts retracted afterwards
	Roles         []string      // Actor roles to draw from
	Workers       int           // Concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	Seed          uint64        // Generator seed; 0 picks one at random
	OutputFile    string        // Optional JSON dump of the generated facts
	Verbose       bool
}

// Validate rejects settings a run cannot proceed with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.SubcategoryID) == "":
		return fmt.Errorf("%w: subcategory must not be empty", ErrInvalidConfig)
	case c.Nominees < 1:
		return fmt.Errorf("%w: at least one nominee is required", ErrInvalidConfig)
	case c.Facts < 0:
		return fmt.Errorf("%w: facts must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case len(c.Roles) == 0:
		return fmt.Errorf("%w: at least one role is required", ErrInvalidConfig)
	}
	for name, rate := range map[string]float64{"vote ratio": c.VoteRatio, "duplicate rate": c.DuplicateRate, "retract rate": c.RetractRate} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Fact is one generated submission.
type Fact struct {
	Kind      string `json:"kind"` // vote or nomination
	NomineeID string `json:"nominee_id"`
	ActorRole string `json:"actor_role"`
	AGCTxnID  string `json:"agc_txn_id,omitempty"`
	// Replay marks a deliberate resubmission of an earlier txn id.
	Replay bool `json:"replay,omitempty"`
}

// Outcome classifies the service's answer to one submission.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRejected    Outcome = "rejected"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeFailed      Outcome = "failed"
)

// Stats holds run statistics
type Stats struct {
	FactsGenerated int
	FactsSubmitted int
	Outcomes       map[Outcome]int
	Retracted      int
	TallyEntries   int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

type ingestRequest struct {
	NomineeID string `json:"nominee_id"`
	ActorRole string `json:"actor_role"`
	AGCTxnID  string `json:"agc_txn_id,omitempty"`
}

type registerRequest struct {
	NomineeID     string `json:"nominee_id"`
	SubcategoryID string `json:"subcategory_id"`
	Name          string `json:"name,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

type tallyEntry = types.TallyEntry

type tallyResponse struct {
	SubcategoryID string       `json:"subcategory_id"`
	Entries       []tallyEntry `json:"entries"`
}

type eligibilityResponse struct {
	NomineeID          string  `json:"nominee_id"`
	SubcategoryID      string  `json:"subcategory_id"`
	CombinedCount      int64   `json:"combined_count"`
	NominationCount    int64   `json:"nomination_count"`
	AGCBackedVoteCount int64   `json:"agc_backed_vote_count"`
	CrossedThreshold   bool    `json:"crossed_threshold"`
	WeightedScore      float64 `json:"weighted_score"`
}
