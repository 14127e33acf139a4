package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"election-system/internal/domain/tally"
)

type electionCounters struct {
	mu       sync.RWMutex // guards the map shape only; counters are atomic
	counters map[string]*atomic.Int64
}

func (c *electionCounters) counter(candidateID string) *atomic.Int64 {
	c.mu.RLock()
	ctr, ok := c.counters[candidateID]
	c.mu.RUnlock()
	if ok {
		return ctr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.counters[candidateID]; ok {
		return ctr
	}
	ctr = &atomic.Int64{}
	c.counters[candidateID] = ctr
	return ctr
}

// TallyRepo holds one atomic counter per (election, candidate).
type TallyRepo struct {
	elections sync.Map // election id -> *electionCounters
}

func NewTallyRepo() *TallyRepo {
	return &TallyRepo{}
}

func (r *TallyRepo) election(electionID string) *electionCounters {
	if v, ok := r.elections.Load(electionID); ok {
		return v.(*electionCounters)
	}
	v, _ := r.elections.LoadOrStore(electionID, &electionCounters{counters: make(map[string]*atomic.Int64)})
	return v.(*electionCounters)
}

func (r *TallyRepo) Increment(_ context.Context, electionID, candidateID string) error {
	r.election(electionID).counter(candidateID).Add(1)
	return nil
}

func (r *TallyRepo) Decrement(_ context.Context, electionID, candidateID string) error {
	ctr := r.election(electionID).counter(candidateID)
	for {
		cur := ctr.Load()
		if cur <= 0 {
			return nil
		}
		if ctr.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

func (r *TallyRepo) Counts(_ context.Context, electionID string) (map[string]int64, error) {
	res := make(map[string]int64)
	v, ok := r.elections.Load(electionID)
	if !ok {
		return res, nil
	}
	ec := v.(*electionCounters)
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	for id, ctr := range ec.counters {
		if n := ctr.Load(); n != 0 {
			res[id] = n
		}
	}
	return res, nil
}

func (r *TallyRepo) Replace(_ context.Context, electionID string, counts map[string]int64) error {
	ec := r.election(electionID)
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for id, ctr := range ec.counters {
		ctr.Store(counts[id])
	}
	for id, n := range counts {
		if _, ok := ec.counters[id]; ok {
			continue
		}
		ctr := &atomic.Int64{}
		ctr.Store(n)
		ec.counters[id] = ctr
	}
	return nil
}

var _ tally.Repository = (*TallyRepo)(nil)
