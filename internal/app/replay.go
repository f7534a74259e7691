package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/logger"
	"github.com/okian/awardtally/pkg/metrics"
)

// replay rebuilds aggregates from the catalog and the store: persisted
// nominees first, then every fact in Seq order, then closures. Eligibility
// is then re-derived from the rebuilt counters. It returns the number of
// facts applied and the events owed to catalog nominees seen for the first
// time.
func (s *Service) replay(ctx context.Context) (int, []model.CertificateEvent, error) {
	nominees, err := s.store.Nominees(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("load nominees: %w", err)
	}
	persisted := make(map[string]struct{}, len(nominees))
	for _, n := range nominees {
		persisted[n.ID] = struct{}{}
		if _, err := s.catalog.AddNominee(n); err != nil {
			s.logger.Warn(ctx, "skipping persisted nominee",
				logger.String("nominee_id", n.ID),
				logger.Error(err),
			)
		}
	}

	var seeded []model.CertificateEvent
	for _, sub := range s.catalog.Subcategories() {
		agg, err := s.ensureAggregate(sub)
		if err != nil {
			return 0, nil, err
		}
		for _, id := range s.catalog.NomineesIn(sub.ID) {
			agg.mu.Lock()
			tr := agg.register(s.evaluator, id)
			agg.mu.Unlock()
			if _, ok := persisted[id]; ok {
				continue
			}
			ev, err := s.seed(ctx, id, tr)
			if err != nil {
				return 0, nil, err
			}
			seeded = append(seeded, ev...)
		}
	}

	facts, err := s.store.Facts(ctx, 0)
	if err != nil {
		return 0, nil, fmt.Errorf("load facts: %w", err)
	}
	applied := 0
	for _, f := range facts {
		agg, ok := s.lookup(f.SubcategoryID)
		if !ok {
			s.logger.Warn(ctx, "skipping fact for unknown subcategory",
				logger.String("fact_id", f.ID),
				logger.String("subcategory_id", f.SubcategoryID),
			)
			continue
		}
		agg.mu.Lock()
		_, err := agg.apply(s.evaluator, f)
		agg.mu.Unlock()
		if err != nil {
			s.logger.Warn(ctx, "skipping fact that no longer applies",
				logger.String("fact_id", f.ID),
				logger.Int64("seq", f.Seq),
				logger.Error(err),
			)
			continue
		}
		applied++
	}

	closures, err := s.store.Closures(ctx)
	if err != nil {
		return applied, nil, fmt.Errorf("load closures: %w", err)
	}
	for _, c := range closures {
		s.restoreClosure(ctx, c)
	}
	s.reconcile(ctx)

	s.aggregates.Range(func(_, v any) bool {
		v.(*aggregate).board.ForceRescore()
		return true
	})
	_, _, total := s.catalog.Counts()
	metrics.UpdateNomineeCount(total)
	metrics.UpdateAggregateCount(s.aggregateCount())
	return applied, seeded, nil
}

// seed persists a catalog nominee on first sight so later restarts know it,
// and returns the lifetime_tier event if registration made it eligible.
func (s *Service) seed(ctx context.Context, nomineeID string, tr model.EligibilityTransition) ([]model.CertificateEvent, error) {
	n, ok := s.catalog.Nominee(nomineeID)
	if !ok {
		return nil, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.store.SaveNominee(ctx, n); err != nil {
		return nil, fmt.Errorf("seed nominee %s: %w", nomineeID, err)
	}
	if tr.Before.CrossedThreshold || !tr.After.CrossedThreshold {
		return nil, nil
	}
	return []model.CertificateEvent{model.NewCertificateEvent(tr.After, model.ReasonLifetimeTier, n.CreatedAt)}, nil
}

// reconcile re-derives every nominee's crossed flag from its counters under
// the current rules.
func (s *Service) reconcile(ctx context.Context) {
	s.aggregates.Range(func(_, v any) bool {
		agg := v.(*aggregate)
		agg.mu.Lock()
		defer agg.mu.Unlock()
		for _, st := range agg.book.All() {
			tr, err := s.evaluator.Recompute(agg.book, st.NomineeID)
			if err != nil {
				s.logger.Warn(ctx, "eligibility recompute failed",
					logger.String("nominee_id", st.NomineeID),
					logger.Error(err),
				)
				continue
			}
			if tr.Before.CrossedThreshold != tr.After.CrossedThreshold {
				s.logger.Info(ctx, "eligibility re-derived from counters",
					logger.String("nominee_id", st.NomineeID),
					logger.Int64("combined_count", tr.After.CombinedCount),
					logger.Bool("crossed", tr.After.CrossedThreshold),
				)
			}
		}
		return true
	})
}

func (s *Service) restoreClosure(ctx context.Context, c model.Closure) {
	agg, ok := s.lookup(c.SubcategoryID)
	if !ok {
		s.logger.Warn(ctx, "skipping closure for unknown subcategory", logger.String("subcategory_id", c.SubcategoryID))
		return
	}
	agg.mu.Lock()
	defer agg.mu.Unlock()
	s.evaluator.MarkWinners(agg.book, c.Winners)
	agg.closed = true
	agg.winners = append([]string(nil), c.Winners...)
	agg.version++
}

// rescoreLoop periodically rebuilds the snapshots of dirty boards on the
// rescoring pool.
func (s *Service) rescoreLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.rescoreInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.rescorePass()
		}
	}
}

// rescorePass rebuilds every dirty board and reports how many it touched.
func (s *Service) rescorePass() int {
	start := time.Now()
	group := s.pool.NewGroup()
	dirty := 0
	s.aggregates.Range(func(_, v any) bool {
		agg := v.(*aggregate)
		if agg.board.Dirty() {
			dirty++
			group.Submit(func() { agg.board.Rescore() })
		}
		return true
	})
	if err := group.Wait(); err != nil {
		s.logger.Error(context.Background(), "rescoring pass failed", logger.Error(err))
	}
	metrics.RecordRescorePass(float64(time.Since(start).Milliseconds()))
	metrics.UpdateAggregateCount(s.aggregateCount())
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	return dirty
}
