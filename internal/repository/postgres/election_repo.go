package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"election-system/internal/domain/election"
)

type electionRow struct {
	ID                string    `db:"id"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	StartAt           time.Time `db:"start_at"`
	EndAt             time.Time `db:"end_at"`
	Status            string    `db:"status"`
	DisplayPhase      string    `db:"display_phase"`
	Eligibility       string    `db:"eligibility"`
	ResultsVisibility string    `db:"results_visibility"`
	OwnerID           string    `db:"owner_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type candidateRow struct {
	ID          string `db:"id"`
	ElectionID  string `db:"election_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Position    int    `db:"position"`
}

type eligibilityRow struct {
	ElectionID    string `db:"election_id"`
	ParticipantID string `db:"participant_id"`
}

func (row electionRow) toDomain() election.Election {
	return election.Election{
		ID:                row.ID,
		Title:             row.Title,
		Description:       row.Description,
		StartAt:           row.StartAt.UTC(),
		EndAt:             row.EndAt.UTC(),
		Status:            election.Status(row.Status),
		DisplayPhase:      election.Phase(row.DisplayPhase),
		Eligibility:       election.EligibilityMode(row.Eligibility),
		ResultsVisibility: election.ResultsVisibility(row.ResultsVisibility),
		OwnerID:           row.OwnerID,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

const electionColumns = `id, title, description, start_at, end_at, status, display_phase,
	eligibility, results_visibility, owner_id, created_at, updated_at`

type ElectionRepo struct {
	db *sqlx.DB
}

func NewElectionRepo(db *sqlx.DB) *ElectionRepo {
	return &ElectionRepo{db: db}
}

func (r *ElectionRepo) Create(ctx context.Context, e *election.Election) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO elections (`+electionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `,
		e.ID, e.Title, e.Description, e.StartAt, e.EndAt, e.Status, e.DisplayPhase,
		e.Eligibility, e.ResultsVisibility, e.OwnerID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := writeRoster(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ElectionRepo) GetByID(ctx context.Context, id string) (*election.Election, error) {
	var row electionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+electionColumns+` FROM elections WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, election.ErrElectionNotFound
		}
		return nil, err
	}
	items, err := r.attach(ctx, []electionRow{row})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (r *ElectionRepo) List(ctx context.Context, ownerID string) ([]election.Election, error) {
	var rows []electionRow
	var err error
	if ownerID == "" {
		err = r.db.SelectContext(ctx, &rows, `
            SELECT `+electionColumns+` FROM elections
            ORDER BY created_at DESC, id
        `)
	} else {
		err = r.db.SelectContext(ctx, &rows, `
            SELECT `+electionColumns+` FROM elections
            WHERE owner_id = $1
            ORDER BY created_at DESC, id
        `, ownerID)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []election.Election{}, nil
	}
	return r.attach(ctx, rows)
}

// attach loads rosters and eligibility lists for rows in two queries.
func (r *ElectionRepo) attach(ctx context.Context, rows []electionRow) ([]election.Election, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err := sqlx.In(`
        SELECT id, election_id, name, description, position
        FROM election_candidates
        WHERE election_id IN (?)
        ORDER BY election_id, position
    `, ids)
	if err != nil {
		return nil, err
	}
	var candidates []candidateRow
	if err := r.db.SelectContext(ctx, &candidates, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	query, args, err = sqlx.In(`
        SELECT election_id, participant_id
        FROM election_eligibility
        WHERE election_id IN (?)
        ORDER BY election_id, participant_id
    `, ids)
	if err != nil {
		return nil, err
	}
	var eligible []eligibilityRow
	if err := r.db.SelectContext(ctx, &eligible, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	rosters := make(map[string][]election.Candidate, len(rows))
	for _, c := range candidates {
		rosters[c.ElectionID] = append(rosters[c.ElectionID], election.Candidate{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Position:    c.Position,
		})
	}
	lists := make(map[string][]string)
	for _, el := range eligible {
		lists[el.ElectionID] = append(lists[el.ElectionID], el.ParticipantID)
	}

	res := make([]election.Election, 0, len(rows))
	for _, row := range rows {
		e := row.toDomain()
		e.Candidates = rosters[row.ID]
		e.EligibleIDs = lists[row.ID]
		res = append(res, e)
	}
	return res, nil
}

func (r *ElectionRepo) Update(ctx context.Context, e *election.Election, now func() time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stored struct {
		Status  string    `db:"status"`
		StartAt time.Time `db:"start_at"`
	}
	err = tx.GetContext(ctx, &stored, `SELECT status, start_at FROM elections WHERE id = $1 FOR UPDATE`, e.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return election.ErrElectionNotFound
		}
		return err
	}

	// The row lock is held from here, so the window cannot be edited under us.
	res, err := tx.ExecContext(ctx, `
        UPDATE elections
        SET title = $2, description = $3, start_at = $4, end_at = $5,
            display_phase = $6, eligibility = $7, results_visibility = $8, updated_at = $9
        WHERE id = $1 AND (status = 'draft' OR start_at > $10)
    `, e.ID, e.Title, e.Description, e.StartAt, e.EndAt, e.DisplayPhase,
		e.Eligibility, e.ResultsVisibility, e.UpdatedAt, now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return election.ErrImmutableElection
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM election_candidates WHERE election_id = $1`, e.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM election_eligibility WHERE election_id = $1`, e.ID); err != nil {
		return err
	}
	if err := writeRoster(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ElectionRepo) UpdateStatus(ctx context.Context, id string, status election.Status, phase election.Phase) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE elections SET status = $2, display_phase = $3, updated_at = now()
        WHERE id = $1
    `, id, status, phase)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ElectionRepo) SetDisplayPhase(ctx context.Context, id string, phase election.Phase) error {
	res, err := r.db.ExecContext(ctx, `UPDATE elections SET display_phase = $2 WHERE id = $1`, id, phase)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *ElectionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM elections WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM elections WHERE id = $1)`, id); err != nil {
		return err
	}
	if exists {
		return election.ErrImmutableElection
	}
	return election.ErrElectionNotFound
}

func writeRoster(ctx context.Context, tx *sqlx.Tx, e *election.Election) error {
	for _, c := range e.Candidates {
		if _, err := tx.NamedExecContext(ctx, `
            INSERT INTO election_candidates (id, election_id, name, description, position)
            VALUES (:id, :election_id, :name, :description, :position)
        `, candidateRow{
			ID:          c.ID,
			ElectionID:  e.ID,
			Name:        c.Name,
			Description: c.Description,
			Position:    c.Position,
		}); err != nil {
			return err
		}
	}
	for _, pid := range e.EligibleIDs {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO election_eligibility (election_id, participant_id)
            VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, e.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return election.ErrElectionNotFound
	}
	return nil
}

var _ election.Repository = (*ElectionRepo)(nil)
