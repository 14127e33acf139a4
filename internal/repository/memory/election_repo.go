package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"election-system/internal/domain/election"
)

// ElectionRepo keeps elections in process memory. Reads return copies.
type ElectionRepo struct {
	mu        sync.RWMutex
	elections map[string]*election.Election
}

func NewElectionRepo() *ElectionRepo {
	return &ElectionRepo{elections: make(map[string]*election.Election)}
}

func (r *ElectionRepo) Create(_ context.Context, e *election.Election) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elections[e.ID] = cloneElection(e)
	return nil
}

func (r *ElectionRepo) GetByID(_ context.Context, id string) (*election.Election, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.elections[id]
	if !ok {
		return nil, election.ErrElectionNotFound
	}
	return cloneElection(e), nil
}

func (r *ElectionRepo) List(_ context.Context, ownerID string) ([]election.Election, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]election.Election, 0, len(r.elections))
	for _, e := range r.elections {
		if ownerID != "" && e.OwnerID != ownerID {
			continue
		}
		res = append(res, *cloneElection(e))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (r *ElectionRepo) Update(_ context.Context, e *election.Election, now func() time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.elections[e.ID]
	if !ok {
		return election.ErrElectionNotFound
	}
	if !stored.Mutable(now()) {
		return election.ErrImmutableElection
	}
	r.elections[e.ID] = cloneElection(e)
	return nil
}

func (r *ElectionRepo) UpdateStatus(_ context.Context, id string, status election.Status, phase election.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[id]
	if !ok {
		return election.ErrElectionNotFound
	}
	e.Status = status
	e.DisplayPhase = phase
	return nil
}

func (r *ElectionRepo) SetDisplayPhase(_ context.Context, id string, phase election.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[id]
	if !ok {
		return election.ErrElectionNotFound
	}
	e.DisplayPhase = phase
	return nil
}

func (r *ElectionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.elections[id]
	if !ok {
		return election.ErrElectionNotFound
	}
	if e.Status != election.StatusDraft {
		return election.ErrImmutableElection
	}
	delete(r.elections, id)
	return nil
}

func cloneElection(e *election.Election) *election.Election {
	c := *e
	c.Candidates = append([]election.Candidate(nil), e.Candidates...)
	c.EligibleIDs = append([]string(nil), e.EligibleIDs...)
	return &c
}

var _ election.Repository = (*ElectionRepo)(nil)
