package ballot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyVoted   = errors.New("participant already voted in this election")
	ErrBallotNotFound = errors.New("ballot not found")
	ErrInvalidBallot  = errors.New("invalid ballot")
)

type Service struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo Repository, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, now: now, logger: logger}
}

func (s *Service) HasVoted(ctx context.Context, electionID, participantID string) (bool, error) {
	return s.repo.Exists(ctx, electionID, participantID)
}

// RecordBallot admits one ballot. Concurrent calls for the same pair resolve to
// exactly one success; the rest get ErrAlreadyVoted.
func (s *Service) RecordBallot(ctx context.Context, electionID, participantID, candidateID string, meta Meta) (*Ballot, error) {
	b, err := s.Prepare(electionID, participantID, candidateID, meta)
	if err != nil {
		return nil, err
	}
	if err := s.Admit(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Prepare builds a ballot with a fresh id without storing it. Admitting the same
// prepared ballot twice is safe: the second attempt reports ErrAlreadyVoted and
// Owns tells whether the stored ballot is this one.
func (s *Service) Prepare(electionID, participantID, candidateID string, meta Meta) (*Ballot, error) {
	electionID = strings.TrimSpace(electionID)
	participantID = strings.TrimSpace(participantID)
	candidateID = strings.TrimSpace(candidateID)
	if electionID == "" || participantID == "" || candidateID == "" {
		return nil, ErrInvalidBallot
	}
	return &Ballot{
		ID:            uuid.NewString(),
		ElectionID:    electionID,
		ParticipantID: participantID,
		CandidateID:   candidateID,
		CastAt:        s.now(),
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
	}, nil
}

func (s *Service) Admit(ctx context.Context, b *Ballot) error {
	return s.repo.Insert(ctx, b)
}

// Owns reports whether the ballot stored for b's pair is b itself.
func (s *Service) Owns(ctx context.Context, b *Ballot) (bool, error) {
	stored, err := s.repo.Get(ctx, b.ElectionID, b.ParticipantID)
	if err != nil {
		if errors.Is(err, ErrBallotNotFound) {
			return false, nil
		}
		return false, err
	}
	return stored.ID == b.ID, nil
}

// DeleteBallot retracts a ballot and hands it back so the caller can reverse its tally effect.
func (s *Service) DeleteBallot(ctx context.Context, electionID, ballotID string) (*Ballot, error) {
	b, err := s.repo.Retract(ctx, electionID, ballotID, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("ballot retracted",
		"election_id", electionID,
		"ballot_id", ballotID,
		"participant_id", b.ParticipantID,
	)
	return b, nil
}

func (s *Service) Count(ctx context.Context, electionID string) (Counts, error) {
	return s.repo.CountByElection(ctx, electionID)
}

func (s *Service) ListByElection(ctx context.Context, electionID string) ([]Ballot, error) {
	return s.repo.ListByElection(ctx, electionID)
}

func (s *Service) ListByParticipant(ctx context.Context, participantID string) ([]Ballot, error) {
	return s.repo.ListByParticipant(ctx, participantID)
}
