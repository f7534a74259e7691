package service

import (
	"time"

	"github.com/okian/awardtally/internal/adapters/ledger"
	"github.com/okian/awardtally/internal/adapters/repository"
	"github.com/okian/awardtally/internal/domain/catalog"
	"github.com/okian/awardtally/internal/domain/eligibility"
	"github.com/okian/awardtally/internal/domain/weights"
	"github.com/okian/awardtally/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the fact store. The service closes it on Stop.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithLedger sets the AGC ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.ledger = l
		}
	}
}

// WithRegistry sets the weight profile registry.
func WithRegistry(r *weights.Registry) Option {
	return func(svc *Service) {
		if r != nil {
			svc.registry = r
		}
	}
}

// WithEvaluator sets the eligibility evaluator.
func WithEvaluator(e *eligibility.Evaluator) Option {
	return func(svc *Service) {
		if e != nil {
			svc.evaluator = e
		}
	}
}

// WithCatalog seeds categories, subcategories, and nominees.
func WithCatalog(c *catalog.Catalog) Option {
	return func(svc *Service) {
		if c != nil {
			svc.catalog = c
		}
	}
}

// WithNotifier sets where certificate events go.
func WithNotifier(n Notifier) Option {
	return func(svc *Service) {
		if n != nil {
			svc.notifier = n
		}
	}
}

// WithDedupeSize bounds the in-process txn claim set.
func WithDedupeSize(size int) Option {
	return func(svc *Service) {
		if size > 0 {
			svc.dedupeSize = size
		}
	}
}

// WithLedgerTimeout bounds each ledger call.
func WithLedgerTimeout(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.ledgerTimeout = d
		}
	}
}

// WithPrices sets the minimum AGC amount a vote and a nomination must carry.
func WithPrices(vote, nomination int64) Option {
	return func(svc *Service) {
		if vote >= 0 {
			svc.votePrice = vote
		}
		if nomination >= 0 {
			svc.nominationPrice = nomination
		}
	}
}

// WithRescoreInterval sets how often dirty boards are rescored in the background.
func WithRescoreInterval(d time.Duration) Option {
	return func(svc *Service) {
		if d > 0 {
			svc.rescoreInterval = d
		}
	}
}

// WithRescoreWorkers sets the size of the rescoring pool.
func WithRescoreWorkers(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.rescoreWorkers = n
		}
	}
}

// WithConflictRetries sets how often a commit is retried after its
// aggregate moved underneath it.
func WithConflictRetries(n int) Option {
	return func(svc *Service) {
		if n >= 0 {
			svc.conflictRetries = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}
