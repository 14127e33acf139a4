package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepPhases(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, nil
}

type countingReconciler struct {
	dirty, all atomic.Int32
}

func (r *countingReconciler) ReconcileDirty(context.Context) (int, error) {
	r.dirty.Add(1)
	return 0, nil
}

func (r *countingReconciler) ReconcileAll(context.Context) (int, error) {
	r.all.Add(1)
	return 1, nil
}

func (r *countingReconciler) PendingRepairs() int { return 0 }

func TestPhaseWorkerSweepsImmediatelyAndOnTick(t *testing.T) {
	s := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewPhaseWorker(s, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestReconcileWorkerRunsFullPassPeriodically(t *testing.T) {
	r := &countingReconciler{}
	w := NewReconcileWorker(r, time.Millisecond, 3, nil)

	for tick := 1; tick <= 6; tick++ {
		w.runOnce(context.Background(), tick%w.fullEvery == 0)
	}
	assert.EqualValues(t, 6, r.dirty.Load())
	assert.EqualValues(t, 2, r.all.Load())
}

func TestEventWorkerDrainsChannel(t *testing.T) {
	ch := make(chan VoteEvent, 4)
	w := NewEventWorker(ch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.True(t, Publish(ch, VoteEvent{Kind: EventVoteAccepted, ElectionID: "e1"}))
	require.True(t, Publish(ch, VoteEvent{Kind: EventBallotRetracted, ElectionID: "e1"}))
	assert.Eventually(t, func() bool { return w.Processed() == 2 }, time.Second, time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	ch := make(chan VoteEvent, 1)
	assert.True(t, Publish(ch, VoteEvent{}))
	assert.False(t, Publish(ch, VoteEvent{}))
	assert.False(t, Publish(nil, VoteEvent{}))
}
