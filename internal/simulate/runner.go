package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/awardtally/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// percent scales ratios for display.
const percent = 100

// Run executes a full simulation: register nominees, submit facts, retract
// some of them, then check the service against what it accepted.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now(), Outcomes: make(map[Outcome]int)}
	log := logger.Get()
	rng, seed := newRand(cfg.Seed)

	log.Info(ctx, "starting award tally simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("subcategory", cfg.SubcategoryID),
		logger.Int("nominees", cfg.Nominees),
		logger.Int("facts", cfg.Facts),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", seed),
	)

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.waitHealthy(ctx); err != nil {
		return nil, err
	}

	ids := nomineeIDs(cfg)
	for _, id := range ids {
		if err := c.registerNominee(ctx, registerRequest{NomineeID: id, SubcategoryID: cfg.SubcategoryID}); err != nil {
			return nil, fmt.Errorf("register nominees: %w", err)
		}
	}
	before, err := snapshot(ctx, c, ids)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	facts := generateFacts(cfg, rng)
	stats.FactsGenerated = len(facts)
	subs := submitFacts(ctx, cfg, c, facts, stats)

	retracted := retractFacts(ctx, cfg, c, subs, rng)
	stats.Retracted = len(retracted)

	after, err := snapshot(ctx, c, ids)
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	entries, err := c.tally(ctx, cfg.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}
	stats.TallyEntries = len(entries)

	if cfg.OutputFile != "" {
		if err := saveFacts(cfg.OutputFile, facts); err != nil {
			log.Warn(ctx, "failed to save facts to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, entries, cfg.Verbose)

	if err := errors.Join(
		verifyTally(entries),
		verifyAtMostOnce(subs),
		verifyCounts(before, after, subs, retracted),
	); err != nil {
		return stats, err
	}
	log.Info(ctx, "simulation completed; service state is consistent")
	return stats, nil
}

// snapshot reads the eligibility state of every nominee.
func snapshot(ctx context.Context, c *client, ids []string) (map[string]eligibilityResponse, error) {
	out := make(map[string]eligibilityResponse, len(ids))
	for _, id := range ids {
		e, err := c.eligibility(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = e
	}
	return out, nil
}

// saveFacts writes the generated facts as an indented JSON array.
func saveFacts(filename string, facts []Fact) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats, entries []tallyEntry, verbose bool) {
	var acceptRate, factsPerSecond float64
	if stats.FactsSubmitted > 0 {
		acceptRate = float64(stats.Outcomes[OutcomeAccepted]) / float64(stats.FactsSubmitted) * percent
	}
	if stats.Duration > 0 {
		factsPerSecond = float64(stats.FactsSubmitted) / stats.Duration.Seconds()
	}

	log := logger.Get()
	log.Info(ctx, "final statistics",
		logger.Int("factsGenerated", stats.FactsGenerated),
		logger.Int("factsSubmitted", stats.FactsSubmitted),
		logger.Int("accepted", stats.Outcomes[OutcomeAccepted]),
		logger.Int("duplicate", stats.Outcomes[OutcomeDuplicate]),
		logger.Int("retracted", stats.Retracted),
		logger.Int("tallyEntries", stats.TallyEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("factsPerSecond", factsPerSecond),
	)

	if !verbose {
		return
	}
	top := min(10, len(entries))
	for _, e := range entries[:top] {
		log.Info(ctx, "tally entry",
			logger.Int("rank", e.Rank),
			logger.String("nominee", e.NomineeID),
			logger.Float64("score", e.WeightedScore),
		)
	}
}
