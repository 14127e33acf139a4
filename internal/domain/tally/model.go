package tally

import (
	"context"
	"time"
)

type OutcomeKind string

const (
	OutcomeWinner  OutcomeKind = "winner"
	OutcomeTie     OutcomeKind = "tie"
	OutcomeNoVotes OutcomeKind = "no_votes"
)

// Outcome is the tagged winner result. WinnerID is set only for OutcomeWinner,
// TiedIDs only for OutcomeTie.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	WinnerID string      `json:"winner_id,omitempty"`
	TiedIDs  []string    `json:"tied_ids,omitempty"`
}

type CandidateResult struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name"`
	Votes       int64   `json:"votes"`
	Percentage  float64 `json:"percentage"`
}

type Snapshot struct {
	ElectionID string            `json:"election_id"`
	Candidates []CandidateResult `json:"candidates"`
	TotalVotes int64             `json:"total_votes"`
	Outcome    Outcome           `json:"outcome"`
	ComputedAt time.Time         `json:"computed_at"`
}

type Discrepancy struct {
	CandidateID string `json:"candidate_id"`
	Tally       int64  `json:"tally"`
	Ballots     int64  `json:"ballots"`
}

type ReconcileReport struct {
	ElectionID    string        `json:"election_id"`
	TallyTotal    int64         `json:"tally_total"`
	BallotTotal   int64         `json:"ballot_total"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
	Repaired      bool          `json:"repaired"`
	CheckedAt     time.Time     `json:"checked_at"`
}

func (r ReconcileReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

// Repository holds per-candidate counters. Increment and Decrement must be atomic
// per (election, candidate) without serializing other candidates or elections.
type Repository interface {
	Increment(ctx context.Context, electionID, candidateID string) error
	// Decrement never takes a counter below zero.
	Decrement(ctx context.Context, electionID, candidateID string) error
	Counts(ctx context.Context, electionID string) (map[string]int64, error)
	Replace(ctx context.Context, electionID string, counts map[string]int64) error
}
