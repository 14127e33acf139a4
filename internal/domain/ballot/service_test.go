package ballot_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-system/internal/domain/ballot"
	"election-system/internal/repository/memory"
)

func newService() *ballot.Service {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return ballot.NewService(memory.NewBallotRepo(), func() time.Time { return now }, nil)
}

func TestRecordBallotOncePerParticipant(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	b, err := svc.RecordBallot(ctx, "e1", "p1", "c1", ballot.Meta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "10.0.0.1", b.IPAddress)

	_, err = svc.RecordBallot(ctx, "e1", "p1", "c2", ballot.Meta{})
	assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)

	_, err = svc.RecordBallot(ctx, "e2", "p1", "c2", ballot.Meta{})
	assert.NoError(t, err, "a participant votes independently in each election")

	voted, err := svc.HasVoted(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.True(t, voted)

	voted, err = svc.HasVoted(ctx, "e1", "p2")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestRecordBallotRejectsBlankFields(t *testing.T) {
	svc := newService()
	_, err := svc.RecordBallot(context.Background(), "e1", "  ", "c1", ballot.Meta{})
	assert.ErrorIs(t, err, ballot.ErrInvalidBallot)
}

func TestConcurrentDuplicateAdmissions(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	const n = 50
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RecordBallot(ctx, "e1", "p1", fmt.Sprintf("c%d", i%3), ballot.Meta{})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ballot.ErrAlreadyVoted):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, dup.Load())

	counts, err := svc.Count(ctx, "e1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Active)
}

func TestDeleteBallotKeepsPairReserved(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	b, err := svc.RecordBallot(ctx, "e1", "p1", "c1", ballot.Meta{})
	require.NoError(t, err)

	retracted, err := svc.DeleteBallot(ctx, "e1", b.ID)
	require.NoError(t, err)
	assert.True(t, retracted.Retracted())
	assert.Equal(t, "c1", retracted.CandidateID)

	_, err = svc.DeleteBallot(ctx, "e1", b.ID)
	assert.ErrorIs(t, err, ballot.ErrBallotNotFound)

	voted, err := svc.HasVoted(ctx, "e1", "p1")
	require.NoError(t, err)
	assert.True(t, voted)

	_, err = svc.RecordBallot(ctx, "e1", "p1", "c2", ballot.Meta{})
	assert.ErrorIs(t, err, ballot.ErrAlreadyVoted)

	counts, err := svc.Count(ctx, "e1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts.Active)
	assert.EqualValues(t, 1, counts.Retracted)
	assert.Empty(t, counts.ByCandidate)
}

func TestDeleteBallotWrongElection(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	b, err := svc.RecordBallot(ctx, "e1", "p1", "c1", ballot.Meta{})
	require.NoError(t, err)

	_, err = svc.DeleteBallot(ctx, "e2", b.ID)
	assert.ErrorIs(t, err, ballot.ErrBallotNotFound)
	_, err = svc.DeleteBallot(ctx, "e1", "missing")
	assert.ErrorIs(t, err, ballot.ErrBallotNotFound)
}

func TestOwnsDistinguishesPreparedBallots(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	mine, err := svc.Prepare("e1", "p1", "c1", ballot.Meta{})
	require.NoError(t, err)
	other, err := svc.Prepare("e1", "p1", "c2", ballot.Meta{})
	require.NoError(t, err)

	owned, err := svc.Owns(ctx, mine)
	require.NoError(t, err)
	assert.False(t, owned)

	require.NoError(t, svc.Admit(ctx, mine))
	assert.ErrorIs(t, svc.Admit(ctx, mine), ballot.ErrAlreadyVoted)

	owned, err = svc.Owns(ctx, mine)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = svc.Owns(ctx, other)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestListings(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.RecordBallot(ctx, "e1", "p1", "c1", ballot.Meta{})
	require.NoError(t, err)
	_, err = svc.RecordBallot(ctx, "e1", "p2", "c2", ballot.Meta{})
	require.NoError(t, err)
	_, err = svc.RecordBallot(ctx, "e2", "p1", "c9", ballot.Meta{})
	require.NoError(t, err)

	byElection, err := svc.ListByElection(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, byElection, 2)

	byParticipant, err := svc.ListByParticipant(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, byParticipant, 2)

	none, err := svc.ListByElection(ctx, "e3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
