package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS elections (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		start_at           TIMESTAMPTZ NOT NULL,
		end_at             TIMESTAMPTZ NOT NULL,
		status             TEXT NOT NULL DEFAULT 'draft',
		display_phase      TEXT NOT NULL DEFAULT 'draft',
		eligibility        TEXT NOT NULL DEFAULT 'open-to-all',
		results_visibility TEXT NOT NULL DEFAULT 'after_close',
		owner_id           TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (start_at < end_at)
	)`,
	`CREATE INDEX IF NOT EXISTS elections_owner_idx ON elections (owner_id)`,
	`CREATE TABLE IF NOT EXISTS election_candidates (
		id          TEXT PRIMARY KEY,
		election_id TEXT NOT NULL REFERENCES elections (id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		position    INT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS election_candidates_election_idx ON election_candidates (election_id, position)`,
	`CREATE TABLE IF NOT EXISTS election_eligibility (
		election_id    TEXT NOT NULL REFERENCES elections (id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		PRIMARY KEY (election_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ballots (
		id             TEXT PRIMARY KEY,
		election_id    TEXT NOT NULL REFERENCES elections (id),
		participant_id TEXT NOT NULL,
		candidate_id   TEXT NOT NULL REFERENCES election_candidates (id),
		cast_at        TIMESTAMPTZ NOT NULL,
		retracted_at   TIMESTAMPTZ,
		ip_address     TEXT NOT NULL DEFAULT '',
		user_agent     TEXT NOT NULL DEFAULT '',
		UNIQUE (election_id, participant_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ballots_participant_idx ON ballots (participant_id)`,
	`CREATE TABLE IF NOT EXISTS election_tallies (
		election_id  TEXT NOT NULL,
		candidate_id TEXT NOT NULL,
		votes        BIGINT NOT NULL DEFAULT 0 CHECK (votes >= 0),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (election_id, candidate_id)
	)`,
}

// EnsureSchema creates the tables used by the sqlx repositories. The audit log
// table is migrated separately by gorm.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
