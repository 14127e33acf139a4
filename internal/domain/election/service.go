package election

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrElectionNotFound  = errors.New("election not found")
	ErrValidation        = errors.New("invalid election")
	ErrInvalidTransition = errors.New("invalid election phase transition")
	ErrImmutableElection = errors.New("election can no longer be modified")
)

const minCandidates = 2

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	repo   Repository
	clock  Clock
	logger *slog.Logger
}

func NewService(repo Repository, clock Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clock, logger: logger}
}

func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) Create(ctx context.Context, cfg Config) (*Election, error) {
	now := s.clock.Now()
	e := &Election{
		ID:                uuid.NewString(),
		Title:             strings.TrimSpace(cfg.Title),
		Description:       strings.TrimSpace(cfg.Description),
		StartAt:           cfg.StartAt.UTC(),
		EndAt:             cfg.EndAt.UTC(),
		Status:            StatusDraft,
		DisplayPhase:      PhaseDraft,
		Candidates:        buildRoster(cfg.Candidates),
		Eligibility:       cfg.Eligibility,
		EligibleIDs:       dedupe(cfg.EligibleIDs),
		ResultsVisibility: cfg.ResultsVisibility,
		OwnerID:           cfg.OwnerID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if e.Eligibility == "" {
		e.Eligibility = EligibilityOpen
	}
	if e.ResultsVisibility == "" {
		e.ResultsVisibility = ResultsAfterClose
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("election created", "election_id", e.ID, "owner_id", e.OwnerID, "candidates", len(e.Candidates))
	return e, nil
}

// Publish moves a draft election into its time-driven lifecycle.
func (s *Service) Publish(ctx context.Context, id string) (*Election, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if e.Status == StatusPublished {
		if e.PhaseAt(now) == PhaseClosed {
			return nil, fmt.Errorf("%w: election %s is closed", ErrInvalidTransition, id)
		}
		return e, nil
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	phase := ResolvePhase(now, e.StartAt, e.EndAt, StatusPublished)
	if phase == PhaseClosed {
		return nil, fmt.Errorf("%w: window of election %s has already ended", ErrInvalidTransition, id)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusPublished, phase); err != nil {
		return nil, err
	}
	e.Status = StatusPublished
	e.DisplayPhase = phase
	e.UpdatedAt = now
	s.logger.Info("election published", "election_id", id, "phase", phase)
	return e, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Election, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if phase := e.PhaseAt(now); phase != PhaseDraft && phase != PhasePending {
		return nil, fmt.Errorf("%w: election %s is %s", ErrImmutableElection, id, phase)
	}

	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.StartAt != nil {
		e.StartAt = in.StartAt.UTC()
	}
	if in.EndAt != nil {
		e.EndAt = in.EndAt.UTC()
	}
	if in.Candidates != nil {
		e.Candidates = buildRoster(in.Candidates)
	}
	if in.Eligibility != nil {
		e.Eligibility = *in.Eligibility
	}
	if in.EligibleIDs != nil {
		e.EligibleIDs = dedupe(in.EligibleIDs)
	}
	if in.ResultsVisibility != nil {
		e.ResultsVisibility = *in.ResultsVisibility
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = now
	if e.Status == StatusPublished {
		e.DisplayPhase = e.PhaseAt(now)
		if e.DisplayPhase == PhaseClosed {
			return nil, fmt.Errorf("%w: window of election %s would already have ended", ErrInvalidTransition, id)
		}
	}
	if err := s.repo.Update(ctx, e, s.clock.Now); err != nil {
		if errors.Is(err, ErrImmutableElection) {
			return nil, fmt.Errorf("%w: election %s opened before the change was stored", err, id)
		}
		return nil, err
	}
	return e, nil
}

// Delete is only allowed for drafts; anything that was ever votable keeps its record.
func (s *Service) Delete(ctx context.Context, id string) error {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != StatusDraft {
		return fmt.Errorf("%w: only draft elections can be deleted", ErrImmutableElection)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrImmutableElection) {
			return fmt.Errorf("%w: only draft elections can be deleted", err)
		}
		return err
	}
	s.logger.Info("election deleted", "election_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Election, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Election, error) {
	items, err := s.repo.List(ctx, f.OwnerID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	res := make([]Election, 0, len(items))
	for _, e := range items {
		if f.Phase != nil && e.PhaseAt(now) != *f.Phase {
			continue
		}
		res = append(res, e)
	}
	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return []Election{}, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(res) {
		res = res[:f.Limit]
	}
	return res, nil
}

// SweepPhases persists the derived phase of every published election for display.
// It returns how many records changed.
func (s *Service) SweepPhases(ctx context.Context) (int, error) {
	items, err := s.repo.List(ctx, "")
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	changed := 0
	for _, e := range items {
		if e.Status != StatusPublished {
			continue
		}
		phase := e.PhaseAt(now)
		if phase == e.DisplayPhase {
			continue
		}
		if err := s.repo.SetDisplayPhase(ctx, e.ID, phase); err != nil {
			if errors.Is(err, ErrElectionNotFound) {
				continue
			}
			return changed, err
		}
		s.logger.Info("election phase changed", "election_id", e.ID, "from", e.DisplayPhase, "to", phase)
		changed++
	}
	return changed, nil
}

func validate(e *Election) error {
	if e.Title == "" {
		return &ValidationError{Field: "title", Reason: "title required"}
	}
	if e.StartAt.IsZero() || e.EndAt.IsZero() {
		return &ValidationError{Field: "window", Reason: "start_at and end_at are required"}
	}
	if !e.StartAt.Before(e.EndAt) {
		return &ValidationError{Field: "window", Reason: "start_at must be before end_at"}
	}
	if len(e.Candidates) < minCandidates {
		return &ValidationError{Field: "candidates", Reason: fmt.Sprintf("at least %d candidates required", minCandidates)}
	}
	seen := make(map[string]struct{}, len(e.Candidates))
	for _, c := range e.Candidates {
		key := strings.ToLower(c.Name)
		if key == "" {
			return &ValidationError{Field: "candidates", Reason: "candidate name required"}
		}
		if _, dup := seen[key]; dup {
			return &ValidationError{Field: "candidates", Reason: fmt.Sprintf("duplicate candidate name %q", c.Name)}
		}
		seen[key] = struct{}{}
	}
	switch e.Eligibility {
	case EligibilityOpen:
	case EligibilityRestricted:
		if len(e.EligibleIDs) == 0 {
			return &ValidationError{Field: "eligible_participants", Reason: "restricted elections need at least one participant"}
		}
	default:
		return &ValidationError{Field: "eligibility", Reason: fmt.Sprintf("unknown mode %q", e.Eligibility)}
	}
	switch e.ResultsVisibility {
	case ResultsAfterClose, ResultsAlways:
	default:
		return &ValidationError{Field: "results_visibility", Reason: fmt.Sprintf("unknown policy %q", e.ResultsVisibility)}
	}
	return nil
}

func buildRoster(in []CandidateInput) []Candidate {
	roster := make([]Candidate, 0, len(in))
	for i, c := range in {
		roster = append(roster, Candidate{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(c.Name),
			Description: strings.TrimSpace(c.Description),
			Position:    i,
		})
	}
	return roster
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
