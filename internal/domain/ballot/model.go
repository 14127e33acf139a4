package ballot

import (
	"context"
	"time"
)

// Ballot is keyed by (ElectionID, ParticipantID). A retracted ballot keeps its key.
type Ballot struct {
	ID            string     `json:"id"`
	ElectionID    string     `json:"election_id"`
	ParticipantID string     `json:"participant_id"`
	CandidateID   string     `json:"candidate_id"`
	CastAt        time.Time  `json:"cast_at"`
	RetractedAt   *time.Time `json:"retracted_at,omitempty"`
	IPAddress     string     `json:"-"`
	UserAgent     string     `json:"-"`
}

func (b *Ballot) Retracted() bool {
	return b.RetractedAt != nil
}

// Meta is request metadata stored alongside the ballot for audit.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Counts is the per-candidate recount of active ballots in one election.
type Counts struct {
	ByCandidate map[string]int64
	Active      int64
	Retracted   int64
}

type Repository interface {
	// Insert stores b only if no ballot exists for its (election, participant) pair.
	// It must be a single atomic step and return ErrAlreadyVoted on conflict.
	Insert(ctx context.Context, b *Ballot) error
	Exists(ctx context.Context, electionID, participantID string) (bool, error)
	Get(ctx context.Context, electionID, participantID string) (*Ballot, error)
	// Retract marks the ballot retracted and returns it. A missing or already
	// retracted ballot yields ErrBallotNotFound.
	Retract(ctx context.Context, electionID, ballotID string, at time.Time) (*Ballot, error)
	CountByElection(ctx context.Context, electionID string) (Counts, error)
	ListByElection(ctx context.Context, electionID string) ([]Ballot, error)
	ListByParticipant(ctx context.Context, participantID string) ([]Ballot, error)
}
