package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"election-system/internal/domain/ballot"
	"election-system/internal/domain/election"
	"election-system/internal/domain/tally"
	"election-system/internal/metrics"
	"election-system/internal/retry"
)

var (
	ErrElectionNotOpen  = errors.New("election is not open for voting")
	ErrNotEligible      = errors.New("participant is not eligible for this election")
	ErrUnknownCandidate = errors.New("candidate is not on the ballot")
	ErrResultsHidden    = errors.New("results are not available yet")
	ErrTransient        = errors.New("temporary storage failure, try again")

	ErrAlreadyVoted     = ballot.ErrAlreadyVoted
	ErrElectionNotFound = election.ErrElectionNotFound
)

// Alerter receives operator notifications about tally divergence.
type Alerter interface {
	Alert(ctx context.Context, msg string) error
}

// AuditLog persists reconciliation outcomes that needed a repair.
type AuditLog interface {
	RecordReconciliation(ctx context.Context, report tally.ReconcileReport) error
	ListByElection(ctx context.Context, electionID string) ([]tally.ReconcileReport, error)
}

type Options struct {
	AdmitAttempts  int
	AdmitBaseDelay time.Duration
	TallyAttempts  int
	TallyBaseDelay time.Duration
	Alerter        Alerter
	Audit          AuditLog
	Logger         *slog.Logger
}

func (o *Options) withDefaults() {
	if o.AdmitAttempts <= 0 {
		o.AdmitAttempts = 3
	}
	if o.AdmitBaseDelay <= 0 {
		o.AdmitBaseDelay = 20 * time.Millisecond
	}
	if o.TallyAttempts <= 0 {
		o.TallyAttempts = 5
	}
	if o.TallyBaseDelay <= 0 {
		o.TallyBaseDelay = 10 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type VoteRequest struct {
	ElectionID    string
	ParticipantID string
	CandidateID   string
	Meta          ballot.Meta
}

// Ack confirms a committed vote.
type Ack struct {
	BallotID    string    `json:"ballot_id"`
	ElectionID  string    `json:"election_id"`
	CandidateID string    `json:"candidate_id"`
	CastAt      time.Time `json:"cast_at"`
}

type Results struct {
	*tally.Snapshot
	Phase election.Phase `json:"phase"`
}

type Stats struct {
	ElectionID string         `json:"election_id"`
	Phase      election.Phase `json:"phase"`
	Ballots    int64          `json:"ballots"`
	Retracted  int64          `json:"retracted"`
	Eligible   int            `json:"eligible,omitempty"`
	Turnout    float64        `json:"turnout,omitempty"`
}

// Coordinator runs a vote through validation, admission and tallying.
// Admissions for one election share a read lock; reconciliation takes the
// write lock so it never observes a ballot whose tally step is in flight.
type Coordinator struct {
	elections *election.Service
	ballots   *ballot.Service
	engine    *tally.Engine
	opts      Options
	logger    *slog.Logger

	gates sync.Map // election id -> *sync.RWMutex
	dirty sync.Map // election id -> struct{}
}

func NewCoordinator(elections *election.Service, ballots *ballot.Service, engine *tally.Engine, opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		elections: elections,
		ballots:   ballots,
		engine:    engine,
		opts:      opts,
		logger:    opts.Logger,
	}
}

func (c *Coordinator) gate(electionID string) *sync.RWMutex {
	if g, ok := c.gates.Load(electionID); ok {
		return g.(*sync.RWMutex)
	}
	g, _ := c.gates.LoadOrStore(electionID, &sync.RWMutex{})
	return g.(*sync.RWMutex)
}

// SubmitVote validates, admits and tallies one vote. Once the ballot is admitted
// the vote is acknowledged even if the tally update keeps failing; the election
// is then queued for reconciliation.
func (c *Coordinator) SubmitVote(ctx context.Context, req VoteRequest) (*Ack, error) {
	ack, err := c.submit(ctx, req)
	metrics.IncVote(Reason(err))
	if err != nil && !errors.Is(err, ErrTransient) {
		c.logger.Debug("vote rejected",
			"election_id", req.ElectionID,
			"participant_id", req.ParticipantID,
			"reason", Reason(err),
		)
	}
	return ack, err
}

func (c *Coordinator) submit(ctx context.Context, req VoteRequest) (*Ack, error) {
	// The clock is read before the election so that a roster edit committed
	// after this read is always checked against a later instant.
	now := c.elections.Now()
	e, err := c.elections.Get(ctx, req.ElectionID)
	if err != nil {
		if errors.Is(err, election.ErrElectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if e.Status == election.StatusDraft {
		return nil, ErrElectionNotFound
	}
	if phase := e.PhaseAt(now); phase != election.PhaseOpen {
		return nil, fmt.Errorf("%w: election is %s", ErrElectionNotOpen, phase)
	}
	if !e.IsEligible(req.ParticipantID) {
		return nil, ErrNotEligible
	}
	if _, ok := e.Candidate(req.CandidateID); !ok {
		return nil, ErrUnknownCandidate
	}

	b, err := c.ballots.Prepare(e.ID, req.ParticipantID, req.CandidateID, req.Meta)
	if err != nil {
		return nil, err
	}

	g := c.gate(e.ID)
	g.RLock()
	defer g.RUnlock()

	if err := c.admit(ctx, b); err != nil {
		return nil, err
	}

	// The ballot is stored; the tally step must not be abandoned with the request.
	tctx := context.WithoutCancel(ctx)
	err = retry.DoWithRetry(tctx, c.opts.TallyAttempts, c.opts.TallyBaseDelay, func() error {
		return c.engine.ApplyBallot(tctx, e.ID, b.CandidateID)
	})
	if err != nil {
		c.markDirty(e.ID)
		metrics.IncTallyFailure()
		c.logger.Error("tally update failed after retries",
			"election_id", e.ID,
			"ballot_id", b.ID,
			"candidate_id", b.CandidateID,
			"error", err,
		)
	}

	return &Ack{
		BallotID:    b.ID,
		ElectionID:  b.ElectionID,
		CandidateID: b.CandidateID,
		CastAt:      b.CastAt,
	}, nil
}

// admit inserts the prepared ballot, retrying only storage failures. Once an
// insert has been attempted, any failure may hide our own write having landed,
// so the stored ballot is checked before the error is reported. If that check
// cannot be made either, the election is queued for reconciliation.
func (c *Coordinator) admit(ctx context.Context, b *ballot.Ballot) error {
	attempted, failed := false, false
	err := retry.DoIf(ctx, c.opts.AdmitAttempts, c.opts.AdmitBaseDelay, isRetryable, func() error {
		attempted = true
		err := c.ballots.Admit(ctx, b)
		if err != nil && !errors.Is(err, ballot.ErrAlreadyVoted) {
			failed = true
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ballot.ErrInvalidBallot) {
		return err
	}
	if attempted && (failed || !errors.Is(err, ballot.ErrAlreadyVoted)) {
		mine, ownErr := c.ballots.Owns(context.WithoutCancel(ctx), b)
		switch {
		case ownErr != nil:
			c.markDirty(b.ElectionID)
			c.logger.Warn("could not verify ballot after failed admission",
				"election_id", b.ElectionID,
				"ballot_id", b.ID,
				"error", ownErr,
			)
		case mine:
			return nil
		}
	}
	switch {
	case errors.Is(err, ballot.ErrAlreadyVoted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ballot.ErrAlreadyVoted),
		errors.Is(err, ballot.ErrInvalidBallot),
		errors.Is(err, ballot.ErrBallotNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// RetractBallot withdraws an admitted ballot and removes its effect on the tally.
// The pair stays reserved, so the participant cannot vote again.
func (c *Coordinator) RetractBallot(ctx context.Context, electionID, ballotID string) (*ballot.Ballot, error) {
	if _, err := c.elections.Get(ctx, electionID); err != nil {
		return nil, err
	}

	g := c.gate(electionID)
	g.RLock()
	defer g.RUnlock()

	var b *ballot.Ballot
	err := retry.DoIf(ctx, c.opts.AdmitAttempts, c.opts.AdmitBaseDelay, isRetryable, func() error {
		var err error
		b, err = c.ballots.DeleteBallot(ctx, electionID, ballotID)
		return err
	})
	if err != nil {
		if isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, err
	}

	tctx := context.WithoutCancel(ctx)
	err = retry.DoWithRetry(tctx, c.opts.TallyAttempts, c.opts.TallyBaseDelay, func() error {
		return c.engine.RetractBallot(tctx, electionID, b.CandidateID)
	})
	if err != nil {
		c.markDirty(electionID)
		metrics.IncTallyFailure()
		c.logger.Error("tally retraction failed after retries",
			"election_id", electionID,
			"ballot_id", ballotID,
			"error", err,
		)
	}
	return b, nil
}

// GetResults returns the live snapshot. Elections with after_close visibility
// hide results from non-organizers until they close.
func (c *Coordinator) GetResults(ctx context.Context, electionID string, organizer bool) (*Results, error) {
	e, err := c.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !organizer && e.Status == election.StatusDraft {
		return nil, ErrElectionNotFound
	}
	phase := e.PhaseAt(c.elections.Now())
	if !organizer && e.ResultsVisibility != election.ResultsAlways && phase != election.PhaseClosed {
		return nil, ErrResultsHidden
	}
	snap, err := c.engine.Snapshot(ctx, e.ID, e.Candidates)
	if err != nil {
		return nil, err
	}
	return &Results{Snapshot: snap, Phase: phase}, nil
}

func (c *Coordinator) HasVoted(ctx context.Context, electionID, participantID string) (bool, error) {
	e, err := c.elections.Get(ctx, electionID)
	if err != nil {
		return false, err
	}
	if e.Status == election.StatusDraft {
		return false, ErrElectionNotFound
	}
	return c.ballots.HasVoted(ctx, electionID, participantID)
}

func (c *Coordinator) ListBallots(ctx context.Context, electionID string) ([]ballot.Ballot, error) {
	if _, err := c.elections.Get(ctx, electionID); err != nil {
		return nil, err
	}
	return c.ballots.ListByElection(ctx, electionID)
}

func (c *Coordinator) ListParticipantBallots(ctx context.Context, participantID string) ([]ballot.Ballot, error) {
	return c.ballots.ListByParticipant(ctx, participantID)
}

func (c *Coordinator) Stats(ctx context.Context, electionID string) (*Stats, error) {
	e, err := c.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	counts, err := c.ballots.Count(ctx, electionID)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ElectionID: e.ID,
		Phase:      e.PhaseAt(c.elections.Now()),
		Ballots:    counts.Active,
		Retracted:  counts.Retracted,
	}
	if e.Eligibility == election.EligibilityRestricted {
		st.Eligible = len(e.EligibleIDs)
		if st.Eligible > 0 {
			st.Turnout = math.Round(float64(counts.Active)*10000/float64(st.Eligible)) / 100
		}
	}
	return st, nil
}

// Reconcile recounts the ballots of one election and repairs the tally if it
// drifted. Admissions for the election wait while it runs.
func (c *Coordinator) Reconcile(ctx context.Context, electionID string) (tally.ReconcileReport, error) {
	if _, err := c.elections.Get(ctx, electionID); err != nil {
		return tally.ReconcileReport{ElectionID: electionID}, err
	}

	g := c.gate(electionID)
	g.Lock()
	counts, err := c.ballots.Count(ctx, electionID)
	if err != nil {
		g.Unlock()
		return tally.ReconcileReport{ElectionID: electionID}, err
	}
	report, err := c.engine.Reconcile(ctx, electionID, counts.ByCandidate)
	g.Unlock()
	if err != nil {
		return report, err
	}
	c.dirty.Delete(electionID)

	if report.Consistent() {
		return report, nil
	}
	metrics.IncInvariantViolation()
	if c.opts.Audit != nil {
		if err := c.opts.Audit.RecordReconciliation(ctx, report); err != nil {
			c.logger.Error("failed to record reconciliation", "election_id", electionID, "error", err)
		}
	}
	if c.opts.Alerter != nil {
		msg := fmt.Sprintf("tally of election %s diverged: counters=%d ballots=%d, repaired=%t",
			electionID, report.TallyTotal, report.BallotTotal, report.Repaired)
		if err := c.opts.Alerter.Alert(ctx, msg); err != nil {
			c.logger.Warn("failed to send alert", "election_id", electionID, "error", err)
		}
	}
	return report, nil
}

// ReconciliationHistory lists the repairs recorded for one election, newest first.
func (c *Coordinator) ReconciliationHistory(ctx context.Context, electionID string) ([]tally.ReconcileReport, error) {
	if _, err := c.elections.Get(ctx, electionID); err != nil {
		return nil, err
	}
	if c.opts.Audit == nil {
		return []tally.ReconcileReport{}, nil
	}
	return c.opts.Audit.ListByElection(ctx, electionID)
}

// ReconcileDirty repairs elections whose tally step gave up.
func (c *Coordinator) ReconcileDirty(ctx context.Context) (int, error) {
	var ids []string
	c.dirty.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	repaired := 0
	for _, id := range ids {
		report, err := c.Reconcile(ctx, id)
		if err != nil {
			if errors.Is(err, election.ErrElectionNotFound) {
				c.dirty.Delete(id)
				continue
			}
			return repaired, err
		}
		if report.Repaired {
			repaired++
		}
	}
	return repaired, nil
}

// ReconcileAll checks every published election.
func (c *Coordinator) ReconcileAll(ctx context.Context) (int, error) {
	items, err := c.elections.List(ctx, election.Filter{})
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, e := range items {
		if e.Status != election.StatusPublished {
			continue
		}
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		report, err := c.Reconcile(ctx, e.ID)
		if err != nil {
			c.logger.Error("reconcile failed", "election_id", e.ID, "error", err)
			continue
		}
		if report.Repaired {
			repaired++
		}
	}
	return repaired, nil
}

// PendingRepairs is the number of elections waiting for reconciliation.
func (c *Coordinator) PendingRepairs() int {
	n := 0
	c.dirty.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Coordinator) markDirty(electionID string) {
	c.dirty.Store(electionID, struct{}{})
}
