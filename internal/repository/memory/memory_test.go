package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-system/internal/domain/election"
	"election-system/internal/domain/tally"
)

var start = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestElectionUpdateGuardedByStoredWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewElectionRepo()
	e := &election.Election{ID: "e1", Title: "Board", StartAt: start, EndAt: start.Add(time.Hour), Status: election.StatusPublished}
	require.NoError(t, repo.Create(ctx, e))

	changed := *e
	changed.Title = "Renamed"
	require.NoError(t, repo.Update(ctx, &changed, at(start.Add(-time.Second))))

	changed.Title = "Late"
	assert.ErrorIs(t, repo.Update(ctx, &changed, at(start)), election.ErrImmutableElection)

	got, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	assert.ErrorIs(t, repo.Update(ctx, &election.Election{ID: "missing"}, at(start)), election.ErrElectionNotFound)
}

func TestElectionDeleteOnlyDrafts(t *testing.T) {
	ctx := context.Background()
	repo := NewElectionRepo()
	require.NoError(t, repo.Create(ctx, &election.Election{ID: "d", Status: election.StatusDraft}))
	require.NoError(t, repo.Create(ctx, &election.Election{ID: "p", Status: election.StatusPublished}))

	assert.ErrorIs(t, repo.Delete(ctx, "p"), election.ErrImmutableElection)
	require.NoError(t, repo.Delete(ctx, "d"))
	assert.ErrorIs(t, repo.Delete(ctx, "d"), election.ErrElectionNotFound)
}

func TestAuditLogNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewAuditLog()
	first := tally.ReconcileReport{
		ElectionID:    "e1",
		Discrepancies: []tally.Discrepancy{{CandidateID: "a", Tally: 2, Ballots: 1}},
		CheckedAt:     start,
	}
	require.NoError(t, log.RecordReconciliation(ctx, first))
	require.NoError(t, log.RecordReconciliation(ctx, tally.ReconcileReport{ElectionID: "e1", CheckedAt: start.Add(time.Minute)}))
	require.NoError(t, log.RecordReconciliation(ctx, tally.ReconcileReport{ElectionID: "e2", CheckedAt: start}))

	got, err := log.ListByElection(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CheckedAt.After(got[1].CheckedAt))

	got[1].Discrepancies[0].Tally = 99
	again, _ := log.ListByElection(ctx, "e1")
	assert.EqualValues(t, 2, again[1].Discrepancies[0].Tally, "callers get copies")

	none, err := log.ListByElection(ctx, "e3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
