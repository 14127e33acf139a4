package election

import "time"

// ResolvePhase derives the phase of an election. The window is inclusive on both ends.
func ResolvePhase(now, startAt, endAt time.Time, status Status) Phase {
	if status == StatusDraft {
		return PhaseDraft
	}
	if now.Before(startAt) {
		return PhasePending
	}
	if now.After(endAt) {
		return PhaseClosed
	}
	return PhaseOpen
}
