package simulate

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/okian/awardtally/pkg/logger"
)

// progressInterval spaces progress log lines.
const progressInterval = time.Second

// submission is the answer the service gave to one generated fact.
type submission struct {
	Fact    Fact
	Outcome Outcome
	FactID  string
}

// submitFacts posts every fact through a pool of cfg.Workers submitters and
// returns the answers in generation order.
func submitFacts(ctx context.Context, cfg *Config, c *client, facts []Fact, stats *Stats) []submission {
	log := logger.Get()
	log.Info(ctx, "submitting facts", logger.Int("facts", len(facts)), logger.Int("workers", cfg.Workers))

	results := make([]submission, len(facts))
	var done atomic.Int64
	var lastReport atomic.Int64

	pool := pond.NewPool(cfg.Workers, pond.WithContext(ctx))
	group := pool.NewGroup()
	for i, f := range facts {
		group.Submit(func() {
			outcome, id := c.submit(ctx, f)
			results[i] = submission{Fact: f, Outcome: outcome, FactID: id}

			n := done.Add(1)
			now := time.Now().UnixNano()
			last := lastReport.Load()
			if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) && cfg.Verbose {
				log.Info(ctx, "submission progress", logger.Int64("done", n), logger.Int("total", len(facts)))
			}
		})
	}
	if err := group.Wait(); err != nil {
		log.Warn(ctx, "submission interrupted", logger.Error(err))
	}
	pool.StopAndWait()

	stats.FactsSubmitted = int(done.Load())
	for _, r := range results {
		if r.Outcome != "" {
			stats.Outcomes[r.Outcome]++
		}
	}
	log.Info(ctx, "fact submission completed",
		logger.Int("accepted", stats.Outcomes[OutcomeAccepted]),
		logger.Int("duplicate", stats.Outcomes[OutcomeDuplicate]),
		logger.Int("rejected", stats.Outcomes[OutcomeRejected]),
		logger.Int("unavailable", stats.Outcomes[OutcomeUnavailable]),
		logger.Int("invalid", stats.Outcomes[OutcomeInvalid]),
		logger.Int("failed", stats.Outcomes[OutcomeFailed]),
	)
	return results
}

// retractFacts retracts a RetractRate share of the accepted facts and
// returns the submissions whose retraction was accepted.
func retractFacts(ctx context.Context, cfg *Config, c *client, subs []submission, rng *rand.Rand) []submission {
	var targets []submission
	for _, s := range subs {
		if s.Outcome == OutcomeAccepted && rng.Float64() < cfg.RetractRate {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	ok := make([]bool, len(targets))
	pool := pond.NewPool(cfg.Workers, pond.WithContext(ctx))
	for i, t := range targets {
		pool.Submit(func() {
			outcome, _ := c.retract(ctx, t.FactID)
			ok[i] = outcome == OutcomeAccepted
		})
	}
	pool.StopAndWait()

	retracted := make([]submission, 0, len(targets))
	for i, t := range targets {
		if ok[i] {
			retracted = append(retracted, t)
		}
	}
	logger.Get().Info(ctx, "retraction completed",
		logger.Int("requested", len(targets)),
		logger.Int("retracted", len(retracted)),
	)
	return retracted
}
