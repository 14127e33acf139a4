package memory

import (
	"context"
	"slices"
	"sync"

	"election-system/internal/domain/tally"
)

// AuditLog keeps repaired reconciliations in process memory.
type AuditLog struct {
	mu      sync.RWMutex
	reports map[string][]tally.ReconcileReport
}

func NewAuditLog() *AuditLog {
	return &AuditLog{reports: make(map[string][]tally.ReconcileReport)}
}

func (l *AuditLog) RecordReconciliation(_ context.Context, report tally.ReconcileReport) error {
	report.Discrepancies = slices.Clone(report.Discrepancies)
	l.mu.Lock()
	l.reports[report.ElectionID] = append(l.reports[report.ElectionID], report)
	l.mu.Unlock()
	return nil
}

// ListByElection returns the recorded repairs of one election, newest first.
func (l *AuditLog) ListByElection(_ context.Context, electionID string) ([]tally.ReconcileReport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored := l.reports[electionID]
	out := make([]tally.ReconcileReport, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		r := stored[i]
		r.Discrepancies = slices.Clone(r.Discrepancies)
		out = append(out, r)
	}
	return out, nil
}
