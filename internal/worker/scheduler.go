package worker

import (
	"context"
	"log/slog"
	"time"

	"election-system/internal/metrics"
)

type PhaseSweeper interface {
	SweepPhases(ctx context.Context) (int, error)
}

type Reconciler interface {
	ReconcileDirty(ctx context.Context) (int, error)
	ReconcileAll(ctx context.Context) (int, error)
	PendingRepairs() int
}

// PhaseWorker refreshes the stored display phase of published elections.
type PhaseWorker struct {
	sweeper  PhaseSweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewPhaseWorker(sweeper PhaseSweeper, interval time.Duration, logger *slog.Logger) *PhaseWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhaseWorker{sweeper: sweeper, interval: interval, logger: logger}
}

func (w *PhaseWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *PhaseWorker) sweep(ctx context.Context) {
	n, err := w.sweeper.SweepPhases(ctx)
	metrics.AddPhaseTransitions(n)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("phase sweep failed", "error", err)
	}
}

// ReconcileWorker repairs elections flagged by failed tally updates on every
// tick, and recounts all published elections every fullEvery ticks.
type ReconcileWorker struct {
	reconciler Reconciler
	interval   time.Duration
	fullEvery  int
	logger     *slog.Logger
}

func NewReconcileWorker(r Reconciler, interval time.Duration, fullEvery int, logger *slog.Logger) *ReconcileWorker {
	if fullEvery < 1 {
		fullEvery = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{reconciler: r, interval: interval, fullEvery: fullEvery, logger: logger}
}

func (w *ReconcileWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			w.runOnce(ctx, tick%w.fullEvery == 0)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context, full bool) {
	repaired, err := w.reconciler.ReconcileDirty(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("reconcile of flagged elections failed", "error", err)
	}
	if full {
		n, err := w.reconciler.ReconcileAll(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("full reconcile failed", "error", err)
		}
		repaired += n
	}
	metrics.SetPendingRepairs(w.reconciler.PendingRepairs())
	if repaired > 0 {
		w.logger.Warn("tallies repaired", "elections", repaired, "full", full)
	}
}
