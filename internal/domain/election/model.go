package election

import (
	"context"
	"time"
)

// Status is what the organizer configured. Phase is derived from it and the clock.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

type Phase string

const (
	PhaseDraft   Phase = "draft"
	PhasePending Phase = "pending"
	PhaseOpen    Phase = "open"
	PhaseClosed  Phase = "closed"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseDraft, PhasePending, PhaseOpen, PhaseClosed:
		return true
	}
	return false
}

type EligibilityMode string

const (
	EligibilityOpen       EligibilityMode = "open-to-all"
	EligibilityRestricted EligibilityMode = "restricted-list"
)

type ResultsVisibility string

const (
	ResultsAfterClose ResultsVisibility = "after_close"
	ResultsAlways     ResultsVisibility = "always"
)

type Election struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	StartAt           time.Time         `json:"start_at"`
	EndAt             time.Time         `json:"end_at"`
	Status            Status            `json:"status"`
	DisplayPhase      Phase             `json:"display_phase"`
	Candidates        []Candidate       `json:"candidates"`
	Eligibility       EligibilityMode   `json:"eligibility"`
	EligibleIDs       []string          `json:"eligible_participants,omitempty"`
	ResultsVisibility ResultsVisibility `json:"results_visibility"`
	OwnerID           string            `json:"owner_id"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position"`
}

// PhaseAt recomputes the phase at now. The stored DisplayPhase is never consulted.
func (e *Election) PhaseAt(now time.Time) Phase {
	return ResolvePhase(now, e.StartAt, e.EndAt, e.Status)
}

func (e *Election) Candidate(id string) (Candidate, bool) {
	for _, c := range e.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

func (e *Election) IsEligible(participantID string) bool {
	if e.Eligibility != EligibilityRestricted {
		return true
	}
	for _, id := range e.EligibleIDs {
		if id == participantID {
			return true
		}
	}
	return false
}

// Config is the organizer input for create.
type Config struct {
	Title             string
	Description       string
	StartAt           time.Time
	EndAt             time.Time
	Candidates        []CandidateInput
	Eligibility       EligibilityMode
	EligibleIDs       []string
	ResultsVisibility ResultsVisibility
	OwnerID           string
}

type CandidateInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateInput carries only the fields being changed.
type UpdateInput struct {
	Title             *string
	Description       *string
	StartAt           *time.Time
	EndAt             *time.Time
	Candidates        []CandidateInput
	Eligibility       *EligibilityMode
	EligibleIDs       []string
	ResultsVisibility *ResultsVisibility
}

type Filter struct {
	Phase   *Phase
	OwnerID string
	Limit   int
	Offset  int
}

// Repository stores elections. Update and Delete re-check mutability against
// the stored record as part of the write and fail with ErrImmutableElection
// when it no longer holds.
type Repository interface {
	Create(ctx context.Context, e *Election) error
	GetByID(ctx context.Context, id string) (*Election, error)
	List(ctx context.Context, ownerID string) ([]Election, error)
	// Update replaces the stored election only while it is a draft or its
	// stored window starts after now(). now is read once the record is locked.
	Update(ctx context.Context, e *Election, now func() time.Time) error
	UpdateStatus(ctx context.Context, id string, status Status, displayPhase Phase) error
	SetDisplayPhase(ctx context.Context, id string, phase Phase) error
	// Delete removes the election only while it is a draft.
	Delete(ctx context.Context, id string) error
}

// Mutable reports whether an election in this stored state may still be edited.
func (e *Election) Mutable(now time.Time) bool {
	return e.Status == StatusDraft || e.StartAt.After(now)
}
