package tally

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"election-system/internal/domain/election"
)

type Engine struct {
	repo   Repository
	now    func() time.Time
	logger *slog.Logger
}

func NewEngine(repo Repository, now func() time.Time, logger *slog.Logger) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, now: now, logger: logger}
}

// ApplyBallot adds exactly one vote for candidateID. The election total is always
// derived as the sum of candidate counters, so it cannot drift from them.
func (e *Engine) ApplyBallot(ctx context.Context, electionID, candidateID string) error {
	return e.repo.Increment(ctx, electionID, candidateID)
}

func (e *Engine) RetractBallot(ctx context.Context, electionID, candidateID string) error {
	return e.repo.Decrement(ctx, electionID, candidateID)
}

func (e *Engine) Snapshot(ctx context.Context, electionID string, roster []election.Candidate) (*Snapshot, error) {
	counts, err := e.repo.Counts(ctx, electionID)
	if err != nil {
		return nil, err
	}
	return Build(electionID, roster, counts, e.now()), nil
}

// Reconcile compares the counters with a recount of ballots and overwrites the
// counters when they differ. Ballots are the source of truth.
func (e *Engine) Reconcile(ctx context.Context, electionID string, ballotCounts map[string]int64) (ReconcileReport, error) {
	report := ReconcileReport{ElectionID: electionID, CheckedAt: e.now()}
	counts, err := e.repo.Counts(ctx, electionID)
	if err != nil {
		return report, err
	}

	keys := make(map[string]struct{}, len(counts)+len(ballotCounts))
	for id := range counts {
		keys[id] = struct{}{}
	}
	for id := range ballotCounts {
		keys[id] = struct{}{}
	}
	for id := range keys {
		report.TallyTotal += counts[id]
		report.BallotTotal += ballotCounts[id]
		if counts[id] != ballotCounts[id] {
			report.Discrepancies = append(report.Discrepancies, Discrepancy{
				CandidateID: id,
				Tally:       counts[id],
				Ballots:     ballotCounts[id],
			})
		}
	}
	if report.Consistent() {
		return report, nil
	}
	sort.Slice(report.Discrepancies, func(i, j int) bool {
		return report.Discrepancies[i].CandidateID < report.Discrepancies[j].CandidateID
	})

	e.logger.Error("tally diverged from ballots",
		"election_id", electionID,
		"tally_total", report.TallyTotal,
		"ballot_total", report.BallotTotal,
		"discrepancies", len(report.Discrepancies),
	)
	if err := e.repo.Replace(ctx, electionID, ballotCounts); err != nil {
		return report, err
	}
	report.Repaired = true
	return report, nil
}

// Build turns raw counters into a snapshot over the election's roster.
func Build(electionID string, roster []election.Candidate, counts map[string]int64, at time.Time) *Snapshot {
	snap := &Snapshot{
		ElectionID: electionID,
		Candidates: make([]CandidateResult, 0, len(roster)),
		ComputedAt: at,
	}
	for _, c := range roster {
		snap.TotalVotes += counts[c.ID]
	}
	for _, c := range roster {
		votes := counts[c.ID]
		snap.Candidates = append(snap.Candidates, CandidateResult{
			CandidateID: c.ID,
			Name:        c.Name,
			Votes:       votes,
			Percentage:  percentage(votes, snap.TotalVotes),
		})
	}
	snap.Outcome = DecideOutcome(snap.Candidates)
	return snap
}

// DecideOutcome names a winner only when exactly one candidate holds the maximum.
func DecideOutcome(results []CandidateResult) Outcome {
	var max int64
	for _, r := range results {
		if r.Votes > max {
			max = r.Votes
		}
	}
	if max == 0 {
		return Outcome{Kind: OutcomeNoVotes}
	}
	var leaders []string
	for _, r := range results {
		if r.Votes == max {
			leaders = append(leaders, r.CandidateID)
		}
	}
	if len(leaders) == 1 {
		return Outcome{Kind: OutcomeWinner, WinnerID: leaders[0]}
	}
	return Outcome{Kind: OutcomeTie, TiedIDs: leaders}
}

func percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	p := float64(votes) * 100.0 / float64(total)
	return math.Round(p*100) / 100
}
