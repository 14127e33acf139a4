package voting

import (
	"context"
	"errors"

	"election-system/internal/domain/ballot"
	"election-system/internal/domain/election"
	"election-system/internal/platform/apperr"
)

// Classify maps registry, ballot and coordinator errors onto the caller-facing
// error classes.
func Classify(err error) apperr.Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, election.ErrValidation),
		errors.Is(err, ballot.ErrInvalidBallot):
		return apperr.KindValidation
	case errors.Is(err, ErrElectionNotOpen),
		errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrUnknownCandidate),
		errors.Is(err, ErrAlreadyVoted),
		errors.Is(err, ErrResultsHidden),
		errors.Is(err, election.ErrInvalidTransition),
		errors.Is(err, election.ErrImmutableElection):
		return apperr.KindPolicy
	case errors.Is(err, ErrElectionNotFound),
		errors.Is(err, ballot.ErrBallotNotFound):
		return apperr.KindNotFound
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return apperr.KindTransient
	default:
		return apperr.KindInternal
	}
}

// Reason is a short label for the result of a vote, used in metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrElectionNotFound):
		return "election_not_found"
	case errors.Is(err, ErrElectionNotOpen):
		return "election_not_open"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrUnknownCandidate):
		return "unknown_candidate"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ballot.ErrInvalidBallot):
		return "invalid_ballot"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "internal"
	}
}
