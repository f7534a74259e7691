package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

const (
	kindVote       = "vote"
	kindNomination = "nomination"
)

// freeNominationRate is the share of nominations sent without a transaction.
const freeNominationRate = 0.5

// newRand returns the generator for a run. A zero seed draws a random one.
func newRand(seed uint64) (*rand.Rand, uint64) {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// nomineeIDs returns the ids of the nominees a run registers.
func nomineeIDs(cfg *Config) []string {
	ids := make([]string, cfg.Nominees)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%04d", cfg.NomineePrefix, i+1)
	}
	return ids
}

// generateFacts builds cfg.Facts submissions. Votes always carry a fresh txn
// id; nominations carry one half of the time. A DuplicateRate share of the
// facts are copies of an earlier txn-backed fact.
func generateFacts(cfg *Config, rng *rand.Rand) []Fact {
	nominees := nomineeIDs(cfg)
	facts := make([]Fact, 0, cfg.Facts)
	var backed []int

	for len(facts) < cfg.Facts {
		if len(backed) > 0 && rng.Float64() < cfg.DuplicateRate {
			replay := facts[backed[rng.IntN(len(backed))]]
			replay.Replay = true
			facts = append(facts, replay)
			continue
		}

		f := Fact{
			Kind:      kindNomination,
			NomineeID: nominees[rng.IntN(len(nominees))],
			ActorRole: cfg.Roles[rng.IntN(len(cfg.Roles))],
		}
		if rng.Float64() < cfg.VoteRatio {
			f.Kind = kindVote
		}
		if f.Kind == kindVote || rng.Float64() >= freeNominationRate {
			f.AGCTxnID = "sim-" + uuid.NewString()
			backed = append(backed, len(facts))
		}
		facts = append(facts, f)
	}
	return facts
}
