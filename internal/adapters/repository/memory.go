package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/metrics"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	seq         int64
	facts       []model.Fact
	byID        map[string]int
	byTxn       map[string]string
	retractedBy map[string]string
	nominees    map[string]model.Nominee
	closures    map[string]model.Closure
	closed      bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]int),
		byTxn:       make(map[string]string),
		retractedBy: make(map[string]string),
		nominees:    make(map[string]model.Nominee),
		closures:    make(map[string]model.Closure),
	}
}

func (s *MemoryStore) Append(_ context.Context, f *model.Fact) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("append", sinceMs(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.byID[f.ID]; ok {
		return ErrDuplicateFact
	}
	if f.TxnID != "" {
		if _, ok := s.byTxn[f.TxnID]; ok {
			return ErrDuplicateTxn
		}
	}
	if f.RetractsID != "" {
		if _, ok := s.retractedBy[f.RetractsID]; ok {
			return ErrAlreadyRetracted
		}
	}

	s.seq++
	f.Seq = s.seq
	s.byID[f.ID] = len(s.facts)
	s.facts = append(s.facts, *f)
	if f.TxnID != "" {
		s.byTxn[f.TxnID] = f.ID
	}
	if f.RetractsID != "" {
		s.retractedBy[f.RetractsID] = f.ID
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, factID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[factID]
	if !ok {
		return ErrNotFound
	}
	f := s.facts[idx]
	s.facts = append(s.facts[:idx], s.facts[idx+1:]...)
	delete(s.byID, factID)
	for i := idx; i < len(s.facts); i++ {
		s.byID[s.facts[i].ID] = i
	}
	if f.TxnID != "" {
		delete(s.byTxn, f.TxnID)
	}
	if f.RetractsID != "" {
		delete(s.retractedBy, f.RetractsID)
	}
	return nil
}

func (s *MemoryStore) Fact(_ context.Context, id string) (model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return model.Fact{}, ErrNotFound
	}
	return s.facts[idx], nil
}

func (s *MemoryStore) FactByTxn(_ context.Context, txnID string) (model.Fact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTxn[txnID]
	if !ok {
		return model.Fact{}, false, nil
	}
	return s.facts[s.byID[id]], true, nil
}

func (s *MemoryStore) RetractionOf(_ context.Context, factID string) (model.Fact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.retractedBy[factID]
	if !ok {
		return model.Fact{}, false, nil
	}
	return s.facts[s.byID[id]], true, nil
}

func (s *MemoryStore) Facts(_ context.Context, afterSeq int64) ([]model.Fact, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("scan", sinceMs(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	// facts is ordered by Seq, so the first match starts the tail.
	i := sort.Search(len(s.facts), func(i int) bool { return s.facts[i].Seq > afterSeq })
	return append([]model.Fact(nil), s.facts[i:]...), nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts), nil
}

func (s *MemoryStore) SaveNominee(_ context.Context, n model.Nominee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nominees[n.ID] = n
	return nil
}

func (s *MemoryStore) Nominees(_ context.Context) ([]model.Nominee, error) {
	s.mu.RLock()
	out := make([]model.Nominee, 0, len(s.nominees))
	for _, n := range s.nominees {
		out = append(out, n)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveClosure(_ context.Context, c model.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.closures[c.SubcategoryID]; ok {
		return ErrClosureExists
	}
	c.Winners = append([]string(nil), c.Winners...)
	s.closures[c.SubcategoryID] = c
	return nil
}

func (s *MemoryStore) Closure(_ context.Context, subcategoryID string) (model.Closure, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.closures[subcategoryID]
	return c, ok, nil
}

func (s *MemoryStore) Closures(_ context.Context) ([]model.Closure, error) {
	s.mu.RLock()
	out := make([]model.Closure, 0, len(s.closures))
	for _, c := range s.closures {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubcategoryID < out[j].SubcategoryID })
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
