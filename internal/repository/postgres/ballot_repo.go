package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"election-system/internal/domain/ballot"
)

type ballotRow struct {
	ID            string       `db:"id"`
	ElectionID    string       `db:"election_id"`
	ParticipantID string       `db:"participant_id"`
	CandidateID   string       `db:"candidate_id"`
	CastAt        time.Time    `db:"cast_at"`
	RetractedAt   sql.NullTime `db:"retracted_at"`
	IPAddress     string       `db:"ip_address"`
	UserAgent     string       `db:"user_agent"`
}

func (row ballotRow) toDomain() ballot.Ballot {
	b := ballot.Ballot{
		ID:            row.ID,
		ElectionID:    row.ElectionID,
		ParticipantID: row.ParticipantID,
		CandidateID:   row.CandidateID,
		CastAt:        row.CastAt.UTC(),
		IPAddress:     row.IPAddress,
		UserAgent:     row.UserAgent,
	}
	if row.RetractedAt.Valid {
		t := row.RetractedAt.Time.UTC()
		b.RetractedAt = &t
	}
	return b
}

const ballotColumns = `id, election_id, participant_id, candidate_id, cast_at, retracted_at, ip_address, user_agent`

// BallotRepo relies on UNIQUE (election_id, participant_id) for atomic admission.
type BallotRepo struct {
	db *sqlx.DB
}

func NewBallotRepo(db *sqlx.DB) *BallotRepo {
	return &BallotRepo{db: db}
}

func (r *BallotRepo) Insert(ctx context.Context, b *ballot.Ballot) error {
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO ballots (id, election_id, participant_id, candidate_id, cast_at, ip_address, user_agent)
        VALUES (:id, :election_id, :participant_id, :candidate_id, :cast_at, :ip_address, :user_agent)
    `, ballotRow{
		ID:            b.ID,
		ElectionID:    b.ElectionID,
		ParticipantID: b.ParticipantID,
		CandidateID:   b.CandidateID,
		CastAt:        b.CastAt,
		IPAddress:     b.IPAddress,
		UserAgent:     b.UserAgent,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ballot.ErrAlreadyVoted
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: candidate %s is not on the roster", ballot.ErrInvalidBallot, b.CandidateID)
		}
		return err
	}
	return nil
}

func (r *BallotRepo) Exists(ctx context.Context, electionID, participantID string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `
        SELECT EXISTS (SELECT 1 FROM ballots WHERE election_id = $1 AND participant_id = $2)
    `, electionID, participantID)
	return ok, err
}

func (r *BallotRepo) Get(ctx context.Context, electionID, participantID string) (*ballot.Ballot, error) {
	var row ballotRow
	err := r.db.GetContext(ctx, &row, `
        SELECT `+ballotColumns+` FROM ballots
        WHERE election_id = $1 AND participant_id = $2
    `, electionID, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ballot.ErrBallotNotFound
		}
		return nil, err
	}
	b := row.toDomain()
	return &b, nil
}

func (r *BallotRepo) Retract(ctx context.Context, electionID, ballotID string, at time.Time) (*ballot.Ballot, error) {
	var row ballotRow
	err := r.db.GetContext(ctx, &row, `
        UPDATE ballots SET retracted_at = $3
        WHERE id = $1 AND election_id = $2 AND retracted_at IS NULL
        RETURNING `+ballotColumns,
		ballotID, electionID, at.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ballot.ErrBallotNotFound
		}
		return nil, err
	}
	b := row.toDomain()
	return &b, nil
}

func (r *BallotRepo) CountByElection(ctx context.Context, electionID string) (ballot.Counts, error) {
	var rows []struct {
		CandidateID string `db:"candidate_id"`
		Active      int64  `db:"active"`
		Retracted   int64  `db:"retracted"`
	}
	err := r.db.SelectContext(ctx, &rows, `
        SELECT candidate_id,
               COUNT(*) FILTER (WHERE retracted_at IS NULL)     AS active,
               COUNT(*) FILTER (WHERE retracted_at IS NOT NULL) AS retracted
        FROM ballots
        WHERE election_id = $1
        GROUP BY candidate_id
    `, electionID)
	counts := ballot.Counts{ByCandidate: make(map[string]int64)}
	if err != nil {
		return counts, err
	}
	for _, row := range rows {
		if row.Active > 0 {
			counts.ByCandidate[row.CandidateID] = row.Active
		}
		counts.Active += row.Active
		counts.Retracted += row.Retracted
	}
	return counts, nil
}

func (r *BallotRepo) ListByElection(ctx context.Context, electionID string) ([]ballot.Ballot, error) {
	return r.list(ctx, `SELECT `+ballotColumns+` FROM ballots WHERE election_id = $1 ORDER BY cast_at, id`, electionID)
}

func (r *BallotRepo) ListByParticipant(ctx context.Context, participantID string) ([]ballot.Ballot, error) {
	return r.list(ctx, `SELECT `+ballotColumns+` FROM ballots WHERE participant_id = $1 ORDER BY cast_at, id`, participantID)
}

func (r *BallotRepo) list(ctx context.Context, query string, arg string) ([]ballot.Ballot, error) {
	var rows []ballotRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, err
	}
	res := make([]ballot.Ballot, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var _ ballot.Repository = (*BallotRepo)(nil)
