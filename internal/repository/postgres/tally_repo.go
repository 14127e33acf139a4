package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"election-system/internal/domain/tally"
)

// TallyRepo keeps one row per (election, candidate). Each change is a single
// statement, so concurrent updates to one counter serialize on its row lock only.
type TallyRepo struct {
	db *sqlx.DB
}

func NewTallyRepo(db *sqlx.DB) *TallyRepo {
	return &TallyRepo{db: db}
}

func (r *TallyRepo) Increment(ctx context.Context, electionID, candidateID string) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO election_tallies (election_id, candidate_id, votes)
        VALUES ($1, $2, 1)
        ON CONFLICT (election_id, candidate_id) DO UPDATE
        SET votes = election_tallies.votes + 1,
            updated_at = now()
    `, electionID, candidateID)
	return err
}

func (r *TallyRepo) Decrement(ctx context.Context, electionID, candidateID string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE election_tallies
        SET votes = GREATEST(votes - 1, 0),
            updated_at = now()
        WHERE election_id = $1 AND candidate_id = $2
    `, electionID, candidateID)
	return err
}

func (r *TallyRepo) Counts(ctx context.Context, electionID string) (map[string]int64, error) {
	var rows []struct {
		CandidateID string `db:"candidate_id"`
		Votes       int64  `db:"votes"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
        SELECT candidate_id, votes
        FROM election_tallies
        WHERE election_id = $1 AND votes > 0
    `, electionID); err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(rows))
	for _, row := range rows {
		res[row.CandidateID] = row.Votes
	}
	return res, nil
}

func (r *TallyRepo) Replace(ctx context.Context, electionID string, counts map[string]int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM election_tallies WHERE election_id = $1`, electionID); err != nil {
		return err
	}
	for candidateID, votes := range counts {
		if votes <= 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO election_tallies (election_id, candidate_id, votes)
            VALUES ($1, $2, $3)
        `, electionID, candidateID, votes); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ tally.Repository = (*TallyRepo)(nil)
