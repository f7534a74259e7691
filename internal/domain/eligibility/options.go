package eligibility

import "github.com/okian/awardtally/internal/domain/model"

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithThreshold overrides the combined-count threshold of a tier.
func WithThreshold(tier model.AwardTier, threshold int64) Option {
	return func(e *Evaluator) {
		if r, ok := e.rules[tier]; ok {
			r.Threshold = threshold
			e.rules[tier] = r
		}
	}
}

// WithWinnerCount overrides the number of winners selected at close.
func WithWinnerCount(tier model.AwardTier, n int) Option {
	return func(e *Evaluator) {
		if r, ok := e.rules[tier]; ok {
			r.WinnerCount = n
			e.rules[tier] = r
		}
	}
}
