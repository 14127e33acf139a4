package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"election-system/internal/domain/ballot"
)

type ballotEntry struct {
	ballot      ballot.Ballot
	retractedAt atomic.Pointer[time.Time]
}

func (e *ballotEntry) snapshot() ballot.Ballot {
	b := e.ballot
	if at := e.retractedAt.Load(); at != nil {
		t := *at
		b.RetractedAt = &t
	}
	return b
}

// BallotRepo shards ballots per election. Admission is a LoadOrStore on the
// participant key, so two racing inserts for one pair cannot both win.
type BallotRepo struct {
	elections sync.Map // election id -> *sync.Map (participant id -> *ballotEntry)
	byID      sync.Map // ballot id -> *ballotEntry
}

func NewBallotRepo() *BallotRepo {
	return &BallotRepo{}
}

func (r *BallotRepo) shard(electionID string) *sync.Map {
	if v, ok := r.elections.Load(electionID); ok {
		return v.(*sync.Map)
	}
	v, _ := r.elections.LoadOrStore(electionID, &sync.Map{})
	return v.(*sync.Map)
}

func (r *BallotRepo) Insert(_ context.Context, b *ballot.Ballot) error {
	entry := &ballotEntry{ballot: *b}
	if _, loaded := r.shard(b.ElectionID).LoadOrStore(b.ParticipantID, entry); loaded {
		return ballot.ErrAlreadyVoted
	}
	r.byID.Store(b.ID, entry)
	return nil
}

func (r *BallotRepo) Exists(_ context.Context, electionID, participantID string) (bool, error) {
	v, ok := r.elections.Load(electionID)
	if !ok {
		return false, nil
	}
	_, ok = v.(*sync.Map).Load(participantID)
	return ok, nil
}

func (r *BallotRepo) Get(_ context.Context, electionID, participantID string) (*ballot.Ballot, error) {
	v, ok := r.elections.Load(electionID)
	if !ok {
		return nil, ballot.ErrBallotNotFound
	}
	entry, ok := v.(*sync.Map).Load(participantID)
	if !ok {
		return nil, ballot.ErrBallotNotFound
	}
	b := entry.(*ballotEntry).snapshot()
	return &b, nil
}

func (r *BallotRepo) Retract(_ context.Context, electionID, ballotID string, at time.Time) (*ballot.Ballot, error) {
	v, ok := r.byID.Load(ballotID)
	if !ok {
		return nil, ballot.ErrBallotNotFound
	}
	entry := v.(*ballotEntry)
	if entry.ballot.ElectionID != electionID {
		return nil, ballot.ErrBallotNotFound
	}
	at = at.UTC()
	if !entry.retractedAt.CompareAndSwap(nil, &at) {
		return nil, ballot.ErrBallotNotFound
	}
	b := entry.snapshot()
	return &b, nil
}

func (r *BallotRepo) CountByElection(_ context.Context, electionID string) (ballot.Counts, error) {
	counts := ballot.Counts{ByCandidate: make(map[string]int64)}
	v, ok := r.elections.Load(electionID)
	if !ok {
		return counts, nil
	}
	v.(*sync.Map).Range(func(_, value any) bool {
		entry := value.(*ballotEntry)
		if entry.retractedAt.Load() != nil {
			counts.Retracted++
			return true
		}
		counts.ByCandidate[entry.ballot.CandidateID]++
		counts.Active++
		return true
	})
	return counts, nil
}

func (r *BallotRepo) ListByElection(_ context.Context, electionID string) ([]ballot.Ballot, error) {
	res := []ballot.Ballot{}
	v, ok := r.elections.Load(electionID)
	if !ok {
		return res, nil
	}
	v.(*sync.Map).Range(func(_, value any) bool {
		res = append(res, value.(*ballotEntry).snapshot())
		return true
	})
	sortBallots(res)
	return res, nil
}

func (r *BallotRepo) ListByParticipant(_ context.Context, participantID string) ([]ballot.Ballot, error) {
	res := []ballot.Ballot{}
	r.elections.Range(func(_, shard any) bool {
		if v, ok := shard.(*sync.Map).Load(participantID); ok {
			res = append(res, v.(*ballotEntry).snapshot())
		}
		return true
	})
	sortBallots(res)
	return res, nil
}

func sortBallots(items []ballot.Ballot) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CastAt.Equal(items[j].CastAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CastAt.Before(items[j].CastAt)
	})
}

var _ ballot.Repository = (*BallotRepo)(nil)
