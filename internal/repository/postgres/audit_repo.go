package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"election-system/internal/domain/tally"
)

// ReconciliationRecord is one repaired divergence between counters and ballots.
type ReconciliationRecord struct {
	ID            uint      `gorm:"primaryKey"`
	ElectionID    string    `gorm:"index;not null"`
	TallyTotal    int64     `gorm:"not null"`
	BallotTotal   int64     `gorm:"not null"`
	Discrepancies string    `gorm:"type:text;not null"`
	Repaired      bool      `gorm:"not null"`
	CheckedAt     time.Time `gorm:"not null"`
	CreatedAt     time.Time
}

func (ReconciliationRecord) TableName() string {
	return "reconciliation_audit"
}

type AuditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ReconciliationRecord{})
}

func (r *AuditRepo) RecordReconciliation(ctx context.Context, report tally.ReconcileReport) error {
	raw, err := json.Marshal(report.Discrepancies)
	if err != nil {
		return err
	}
	rec := ReconciliationRecord{
		ElectionID:    report.ElectionID,
		TallyTotal:    report.TallyTotal,
		BallotTotal:   report.BallotTotal,
		Discrepancies: string(raw),
		Repaired:      report.Repaired,
		CheckedAt:     report.CheckedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// ListByElection returns the recorded repairs of one election, newest first.
func (r *AuditRepo) ListByElection(ctx context.Context, electionID string) ([]tally.ReconcileReport, error) {
	var recs []ReconciliationRecord
	err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("checked_at DESC, id DESC").
		Find(&recs).
		Error
	if err != nil {
		return nil, err
	}

	reports := make([]tally.ReconcileReport, 0, len(recs))
	for _, rec := range recs {
		report := tally.ReconcileReport{
			ElectionID:  rec.ElectionID,
			TallyTotal:  rec.TallyTotal,
			BallotTotal: rec.BallotTotal,
			Repaired:    rec.Repaired,
			CheckedAt:   rec.CheckedAt,
		}
		if err := json.Unmarshal([]byte(rec.Discrepancies), &report.Discrepancies); err != nil {
			return nil, fmt.Errorf("decode discrepancies of record %d: %w", rec.ID, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
