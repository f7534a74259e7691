// Package service ties the ledger, the fact store, and the per-subcategory
// aggregates together behind the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"

	"github.com/okian/awardtally/internal/adapters/ledger"
	"github.com/okian/awardtally/internal/adapters/repository"
	"github.com/okian/awardtally/internal/domain/catalog"
	"github.com/okian/awardtally/internal/domain/dedupe"
	"github.com/okian/awardtally/internal/domain/eligibility"
	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/internal/domain/types"
	"github.com/okian/awardtally/internal/domain/weights"
	"github.com/okian/awardtally/pkg/logger"
	"github.com/okian/awardtally/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Notifier receives certificate events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, events ...model.CertificateEvent)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, ...model.CertificateEvent) {}

// Service implements the tally and eligibility operations.
type Service struct {
	mu sync.Mutex

	store     repository.Store
	ledger    ledger.Ledger
	registry  *weights.Registry
	evaluator *eligibility.Evaluator
	catalog   *catalog.Catalog
	deduper   dedupe.Deduper
	notifier  Notifier

	aggregates sync.Map // subcategory id -> *aggregate
	regMu      sync.Mutex

	dedupeSize      int
	ledgerTimeout   time.Duration
	votePrice       int64
	nominationPrice int64
	rescoreInterval time.Duration
	rescoreWorkers  int
	conflictRetries int

	started atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	pool    pond.Pool

	now    func() time.Time
	logger logger.Logger
}

// New constructs a Service. Missing collaborators get in-memory defaults.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		dedupeSize:      50000,
		ledgerTimeout:   2 * time.Second,
		votePrice:       1,
		nominationPrice: 1,
		rescoreInterval: time.Second,
		rescoreWorkers:  4,
		conflictRetries: 5,
		notifier:        discardNotifier{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		r, err := weights.NewRegistry(weights.DefaultTables())
		if err != nil {
			return nil, fmt.Errorf("default weights: %w", err)
		}
		s.registry = r
	}
	if s.evaluator == nil {
		e, err := eligibility.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("default rules: %w", err)
		}
		s.evaluator = e
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.ledger == nil {
		s.ledger = ledger.NewMemoryLedger()
	}
	if s.catalog == nil {
		s.catalog = catalog.New()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s, nil
}

// Start rebuilds derived state from the store and starts background
// rescoring. The ledger is not touched during replay; the notifier only
// hears of catalog nominees that are eligible on first sight.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.Load() {
		return nil
	}
	s.logger.Info(ctx, "starting tally service...")

	start := time.Now()
	replayed, seeded, err := s.replay(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	s.stopCh = make(chan struct{})
	s.pool = pond.NewPool(s.rescoreWorkers)
	s.wg.Add(1)
	go s.rescoreLoop()

	s.started.Store(true)
	cats, subs, noms := s.catalog.Counts()
	s.logger.Info(ctx, "tally service started",
		logger.Int("categories", cats),
		logger.Int("subcategories", subs),
		logger.Int("nominees", noms),
		logger.Int("facts_replayed", replayed),
		logger.Duration("replay_took", time.Since(start)),
	)
	s.emit(ctx, seeded)
	return nil
}

// Stop halts background work and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return
	}
	s.logger.Info(context.Background(), "stopping tally service...")
	s.started.Store(false)

	close(s.stopCh)
	s.wg.Wait()
	s.pool.StopAndWait()

	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "error closing store", logger.Error(err))
	}
	s.logger.Info(context.Background(), "tally service stopped")
}

// SubmitNomination records a nomination. txnID may be empty for a free
// nomination, which does not touch the ledger.
func (s *Service) SubmitNomination(ctx context.Context, nomineeID, role, txnID string) (string, error) {
	return s.ingest(ctx, "submit nomination", model.KindNomination, nomineeID, role, txnID)
}

// SubmitVote records an AGC-backed vote. txnID is required.
func (s *Service) SubmitVote(ctx context.Context, nomineeID, role, txnID string) (string, error) {
	return s.ingest(ctx, "submit vote", model.KindVote, nomineeID, role, txnID)
}

func (s *Service) ingest(ctx context.Context, op string, kind model.FactKind, nomineeID, roleName, txnID string) (string, error) {
	id, err := s.doIngest(ctx, op, kind, nomineeID, roleName, strings.TrimSpace(txnID))
	if err != nil {
		metrics.RecordIngestRejected(types.KindLabel(err))
		s.logger.Debug(ctx, "ingest rejected",
			logger.String("kind", string(kind)),
			logger.String("nominee_id", nomineeID),
			logger.Error(err),
		)
		return "", err
	}
	metrics.RecordFactIngested(string(kind))
	return id, nil
}

func (s *Service) doIngest(ctx context.Context, op string, kind model.FactKind, nomineeID, roleName, txnID string) (string, error) {
	if !s.started.Load() {
		return "", ErrNotStarted
	}

	// Validation happens before anything external is touched.
	role, err := model.ParseRole(roleName)
	if err != nil {
		return "", types.NewError(op, types.ErrValidation, err)
	}
	nominee, ok := s.catalog.Nominee(nomineeID)
	if !ok {
		return "", types.Validationf(op, "unknown nominee %q", nomineeID)
	}
	agg, ok := s.lookup(nominee.SubcategoryID)
	if !ok {
		return "", types.Validationf(op, "nominee %s has no subcategory", nomineeID)
	}
	if !agg.profile.Permits(role) {
		return "", types.Validationf(op, "role %s may not take part in the %s tier", role, agg.sub.Tier)
	}
	if kind == model.KindVote && txnID == "" {
		return "", types.Validationf(op, "a vote requires an AGC transaction id")
	}
	version, closed := agg.state()
	if closed {
		return "", types.Validationf(op, "subcategory %s is closed", agg.sub.ID)
	}

	keepClaim := false
	if txnID != "" {
		claim, seen := s.deduper.SeenAndRecord(ctx, txnID)
		if seen {
			return "", types.NewError(op, types.ErrDuplicateTransaction, fmt.Errorf("txn %s is being processed or already used", txnID))
		}
		defer func() {
			if !keepClaim {
				s.deduper.Unrecord(ctx, claim)
			}
		}()

		if _, bound, err := s.store.FactByTxn(ctx, txnID); err != nil {
			return "", fmt.Errorf("%s: lookup txn: %w", op, err)
		} else if bound {
			keepClaim = true
			return "", types.NewError(op, types.ErrDuplicateTransaction, fmt.Errorf("txn %s already backs a fact", txnID))
		}
	}

	if txnID != "" {
		price := s.votePrice
		if kind == model.KindNomination {
			price = s.nominationPrice
		}
		if err := s.consume(ctx, op, txnID, ledger.Purpose{Kind: kind, MinAmount: price}); err != nil {
			return "", err
		}
	}

	now := s.now().UTC()
	f := model.Fact{
		ID:             ulid.MustNewDefault(now).String(),
		Kind:           kind,
		NomineeID:      nominee.ID,
		SubcategoryID:  agg.sub.ID,
		Role:           role,
		TxnID:          txnID,
		AGCBacked:      txnID != "",
		WeightEligible: kind == model.KindVote && agg.profile.WeightEligible(role),
		Delta:          1,
		RecordedAt:     now,
	}

	if err := s.store.Append(ctx, &f); err != nil {
		if errors.Is(err, repository.ErrDuplicateTxn) {
			keepClaim = true
			return "", types.NewError(op, types.ErrDuplicateTransaction, err)
		}
		return "", fmt.Errorf("%s: append fact: %w", op, err)
	}

	tr, err := s.commit(ctx, op, agg, f, version)
	if err != nil {
		s.compensate(ctx, f.ID)
		return "", err
	}
	keepClaim = true

	s.emit(ctx, model.EventsFor(tr, now))
	return f.ID, nil
}

// consume calls the ledger under the configured deadline.
func (s *Service) consume(ctx context.Context, op, txnID string, p ledger.Purpose) error {
	lctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.ledger.VerifyAndConsume(lctx, txnID, p)
	ms := float64(time.Since(start).Milliseconds())

	switch {
	case err == nil:
		metrics.RecordLedgerLatency("ok", ms)
		return nil
	case errors.Is(err, ledger.ErrRejected):
		metrics.RecordLedgerLatency("rejected", ms)
		return types.NewError(op, types.ErrLedgerRejected, err)
	default:
		metrics.RecordLedgerLatency("unavailable", ms)
		metrics.RecordErrorByComponent("ledger", "unavailable")
		s.logger.Warn(ctx, "ledger unavailable", logger.String("txn_id", txnID), logger.Error(err))
		return types.NewError(op, types.ErrLedgerUnavailable, err)
	}
}

// compensate removes a fact whose commit failed so the log never holds a
// fact the aggregates did not count.
func (s *Service) compensate(ctx context.Context, factID string) {
	if err := s.store.Remove(context.WithoutCancel(ctx), factID); err != nil {
		metrics.RecordErrorByComponent("store", "compensate")
		s.logger.Error(ctx, "failed to remove uncommitted fact",
			logger.String("fact_id", factID),
			logger.Error(err),
		)
	}
}

// commit applies f to agg if agg is still at the version seen before the
// ledger call. A moved version is re-read and the same fact retried with
// backoff; the closed check runs again on every attempt.
func (s *Service) commit(ctx context.Context, op string, agg *aggregate, f model.Fact, expected int64) (model.EligibilityTransition, error) { //nolint:gocritic // hugeParam
	var tr model.EligibilityTransition
	operation := func() error {
		agg.mu.Lock()
		defer agg.mu.Unlock()

		if agg.closed {
			return backoff.Permanent(types.Validationf(op, "subcategory %s is closed", agg.sub.ID))
		}
		if agg.version != expected {
			metrics.RecordAggregateConflict()
			err := types.NewError(op, types.ErrAggregateConflict,
				fmt.Errorf("subcategory %s moved from version %d to %d", agg.sub.ID, expected, agg.version))
			expected = agg.version
			return err
		}
		t, err := agg.apply(s.evaluator, f)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: apply fact: %w", op, err))
		}
		tr = t
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.conflictRetries)), ctx))
	if err == nil {
		return tr, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return model.EligibilityTransition{}, types.NewError(op, types.ErrAggregateConflict, err)
	}
	return model.EligibilityTransition{}, err
}

// RetractFact records the retraction of factID and returns its id. A fact
// can be retracted once; retractions themselves cannot be retracted.
func (s *Service) RetractFact(ctx context.Context, factID string) (string, error) {
	const op = "retract fact"
	if !s.started.Load() {
		return "", ErrNotStarted
	}

	orig, err := s.store.Fact(ctx, factID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", types.NewError(op, types.ErrNotFound, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if orig.IsRetraction() {
		return "", types.Validationf(op, "fact %s is itself a retraction", factID)
	}
	if _, done, err := s.store.RetractionOf(ctx, factID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	} else if done {
		return "", types.Validationf(op, "fact %s is already retracted", factID)
	}

	agg, ok := s.lookup(orig.SubcategoryID)
	if !ok {
		return "", types.NewError(op, types.ErrNotFound, fmt.Errorf("subcategory %s", orig.SubcategoryID))
	}
	version, closed := agg.state()
	if closed {
		return "", types.Validationf(op, "subcategory %s is closed", agg.sub.ID)
	}

	now := s.now().UTC()
	r := orig.Retraction(ulid.MustNewDefault(now).String(), now)
	if err := s.store.Append(ctx, &r); err != nil {
		if errors.Is(err, repository.ErrAlreadyRetracted) {
			return "", types.NewError(op, types.ErrValidation, err)
		}
		return "", fmt.Errorf("%s: append retraction: %w", op, err)
	}

	tr, err := s.commit(ctx, op, agg, r, version)
	if err != nil {
		s.compensate(ctx, r.ID)
		return "", err
	}
	metrics.RecordFactRetracted()
	if tr.Before.CrossedThreshold && !tr.After.CrossedThreshold {
		s.logger.Info(ctx, "nominee fell below threshold after retraction",
			logger.String("nominee_id", r.NomineeID),
			logger.Int64("combined_count", tr.After.CombinedCount),
		)
	}
	return r.ID, nil
}

// RegisterNominee adds a nominee to an open subcategory. Registering the
// same nominee in the same subcategory again is a no-op. Lifetime nominees
// are eligible on registration and emit a lifetime_tier event.
func (s *Service) RegisterNominee(ctx context.Context, nomineeID, subcategoryID, name string) error {
	const op = "register nominee"
	if !s.started.Load() {
		return ErrNotStarted
	}
	nomineeID = strings.TrimSpace(nomineeID)
	if nomineeID == "" {
		return types.Validationf(op, "nominee id is empty")
	}
	agg, ok := s.lookup(subcategoryID)
	if !ok {
		return types.NewError(op, types.ErrNotFound, fmt.Errorf("subcategory %q", subcategoryID))
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()

	if existing, ok := s.catalog.Nominee(nomineeID); ok {
		if existing.SubcategoryID != subcategoryID {
			return types.Validationf(op, "nominee %s already belongs to subcategory %s", nomineeID, existing.SubcategoryID)
		}
		return nil
	}
	if _, closed := agg.state(); closed {
		return types.Validationf(op, "subcategory %s is closed", subcategoryID)
	}

	n := model.Nominee{ID: nomineeID, SubcategoryID: subcategoryID, Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.SaveNominee(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// A nominee is on the board before the catalog can resolve it.
	agg.mu.Lock()
	if agg.closed {
		agg.mu.Unlock()
		return types.Validationf(op, "subcategory %s is closed", subcategoryID)
	}
	tr := agg.register(s.evaluator, nomineeID)
	agg.mu.Unlock()

	if _, err := s.catalog.AddNominee(n); err != nil {
		return types.NewError(op, types.ErrValidation, err)
	}

	_, _, total := s.catalog.Counts()
	metrics.UpdateNomineeCount(total)

	if !tr.Before.CrossedThreshold && tr.After.CrossedThreshold {
		s.emit(ctx, []model.CertificateEvent{model.NewCertificateEvent(tr.After, model.ReasonLifetimeTier, n.CreatedAt)})
	}
	return nil
}

// CloseSubcategory ends voting, selects winners, and persists them. Closing
// again returns the stored winners.
func (s *Service) CloseSubcategory(ctx context.Context, subcategoryID string) ([]string, error) {
	const op = "close subcategory"
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	agg, ok := s.lookup(subcategoryID)
	if !ok {
		return nil, types.NewError(op, types.ErrNotFound, fmt.Errorf("subcategory %q", subcategoryID))
	}

	agg.mu.Lock()
	if agg.closed {
		agg.mu.Unlock()
		return agg.closedWinners(), nil
	}

	snap := agg.board.ForceRescore()
	winners := s.evaluator.Winners(agg.sub.Tier, snap.Entries)
	closure := model.Closure{SubcategoryID: subcategoryID, Winners: winners, ClosedAt: s.now().UTC()}

	if err := s.store.SaveClosure(ctx, closure); err != nil {
		if !errors.Is(err, repository.ErrClosureExists) {
			agg.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		stored, _, lerr := s.store.Closure(ctx, subcategoryID)
		if lerr != nil {
			agg.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", op, lerr)
		}
		closure = stored
	}

	trs := s.evaluator.MarkWinners(agg.book, closure.Winners)
	agg.closed = true
	agg.winners = append([]string(nil), closure.Winners...)
	agg.version++
	agg.mu.Unlock()

	var events []model.CertificateEvent
	for _, tr := range trs {
		metrics.RecordWinnerSelected(string(agg.sub.Tier))
		events = append(events, model.EventsFor(tr, closure.ClosedAt)...)
	}
	s.emit(ctx, events)

	s.logger.Info(ctx, "subcategory closed",
		logger.String("subcategory_id", subcategoryID),
		logger.Any("winners", closure.Winners),
	)
	return append([]string(nil), closure.Winners...), nil
}

// GetTally returns the ranked board of a subcategory.
func (s *Service) GetTally(ctx context.Context, subcategoryID string) ([]types.TallyEntry, error) {
	agg, ok := s.lookup(subcategoryID)
	if !ok {
		return nil, types.NewError("get tally", types.ErrNotFound, fmt.Errorf("subcategory %q", subcategoryID))
	}
	snap := agg.board.Snapshot()
	out := make([]types.TallyEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		out[i] = types.TallyEntry{Rank: e.Rank, NomineeID: e.NomineeID, WeightedScore: e.WeightedScore}
	}
	return out, nil
}

// GetEligibility returns the nominee's eligibility state.
func (s *Service) GetEligibility(ctx context.Context, nomineeID string) (model.EligibilityState, error) {
	agg, err := s.aggregateOf("get eligibility", nomineeID)
	if err != nil {
		return model.EligibilityState{}, err
	}
	st, ok := agg.book.Get(nomineeID)
	if !ok {
		return model.EligibilityState{}, types.NewError("get eligibility", types.ErrNotFound, fmt.Errorf("nominee %q", nomineeID))
	}
	return st, nil
}

// WeightedScore returns the nominee's current normalized score.
func (s *Service) WeightedScore(ctx context.Context, nomineeID string) (float64, error) {
	agg, err := s.aggregateOf("weighted score", nomineeID)
	if err != nil {
		return 0, err
	}
	return agg.board.WeightedScore(nomineeID), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	ctx := context.Background()
	cats, subs, noms := s.catalog.Counts()
	stats := map[string]interface{}{
		"started":       s.started.Load(),
		"categories":    cats,
		"subcategories": subs,
		"nominees":      noms,
		"aggregates":    s.aggregateCount(),
		"dedupeSize":    s.deduper.Size(),
	}

	closed := 0
	s.aggregates.Range(func(_, v any) bool {
		if _, c := v.(*aggregate).state(); c {
			closed++
		}
		return true
	})
	stats["closedSubcategories"] = closed

	if s.started.Load() {
		if n, err := s.store.Count(ctx); err == nil {
			stats["facts"] = n
		}
	}
	if b, ok := s.notifier.(interface{ Backlog() int }); ok {
		stats["notifierBacklog"] = b.Backlog()
	}
	return stats
}

func (s *Service) emit(ctx context.Context, events []model.CertificateEvent) {
	if len(events) == 0 {
		return
	}
	for _, e := range events {
		if e.Reason == model.ReasonThresholdCrossed {
			metrics.RecordThresholdCrossed(string(e.Tier))
		}
		s.logger.Info(ctx, "certificate eligibility gained",
			logger.String("nominee_id", e.NomineeID),
			logger.String("reason", e.Reason),
		)
	}
	s.notifier.Notify(context.WithoutCancel(ctx), events...)
}

func (s *Service) lookup(subcategoryID string) (*aggregate, bool) {
	v, ok := s.aggregates.Load(subcategoryID)
	if !ok {
		return nil, false
	}
	return v.(*aggregate), true
}

func (s *Service) aggregateOf(op, nomineeID string) (*aggregate, error) {
	n, ok := s.catalog.Nominee(nomineeID)
	if !ok {
		return nil, types.NewError(op, types.ErrNotFound, fmt.Errorf("nominee %q", nomineeID))
	}
	agg, ok := s.lookup(n.SubcategoryID)
	if !ok {
		return nil, types.NewError(op, types.ErrNotFound, fmt.Errorf("subcategory %q", n.SubcategoryID))
	}
	return agg, nil
}

// ensureAggregate returns the aggregate of sub, creating it on first use.
func (s *Service) ensureAggregate(sub model.Subcategory) (*aggregate, error) {
	if agg, ok := s.lookup(sub.ID); ok {
		return agg, nil
	}
	profile, err := s.registry.WeightsFor(sub.Tier)
	if err != nil {
		return nil, fmt.Errorf("subcategory %s: %w", sub.ID, err)
	}
	v, _ := s.aggregates.LoadOrStore(sub.ID, newAggregate(sub, profile))
	return v.(*aggregate), nil
}

func (s *Service) aggregateCount() int {
	n := 0
	s.aggregates.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
