package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type EventKind string

const (
	EventVoteAccepted    EventKind = "vote_accepted"
	EventBallotRetracted EventKind = "ballot_retracted"
)

type VoteEvent struct {
	Kind        EventKind
	ElectionID  string
	BallotID    string
	CandidateID string
}

// EventWorker drains vote events published by the HTTP layer after a commit.
type EventWorker struct {
	Ch        <-chan VoteEvent
	logger    *slog.Logger
	processed atomic.Int64
}

func NewEventWorker(ch <-chan VoteEvent, logger *slog.Logger) *EventWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWorker{Ch: ch, logger: logger}
}

func (w *EventWorker) Run(ctx context.Context) {
	w.logger.Info("vote event worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("vote event worker stopped", "processed", w.processed.Load())
			return
		case ev, ok := <-w.Ch:
			if !ok {
				return
			}
			w.processed.Add(1)
			w.logger.Debug("vote event",
				"kind", ev.Kind,
				"election_id", ev.ElectionID,
				"ballot_id", ev.BallotID,
				"candidate_id", ev.CandidateID,
			)
		}
	}
}

func (w *EventWorker) Processed() int64 {
	return w.processed.Load()
}

// Publish hands ev to the worker without blocking the request path. Events are
// dropped when the buffer is full.
func Publish(ch chan<- VoteEvent, ev VoteEvent) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}
