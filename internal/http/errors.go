package api

import (
	"context"
	"errors"
	"net/http"

	"election-system/internal/domain/ballot"
	"election-system/internal/domain/election"
	"election-system/internal/domain/voting"
	"election-system/internal/platform/apperr"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	if appErr.StatusCode() == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verr *election.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperr.BadRequest("invalid_election", verr.Error(), err)
	case errors.Is(err, ballot.ErrInvalidBallot):
		return apperr.BadRequest("invalid_ballot", "election, participant and candidate are required", err)
	case errors.Is(err, election.ErrElectionNotFound):
		return apperr.NotFound("election_not_found", "election not found", err)
	case errors.Is(err, ballot.ErrBallotNotFound):
		return apperr.NotFound("ballot_not_found", "ballot not found", err)
	case errors.Is(err, voting.ErrAlreadyVoted):
		return apperr.Conflict("already_voted", "participant already voted in this election", err)
	case errors.Is(err, voting.ErrElectionNotOpen):
		return apperr.Conflict("election_not_open", err.Error(), err)
	case errors.Is(err, voting.ErrNotEligible):
		return apperr.Forbidden("not_eligible", "participant is not eligible for this election", err)
	case errors.Is(err, voting.ErrUnknownCandidate):
		return apperr.BadRequest("unknown_candidate", "candidate is not on the ballot", err)
	case errors.Is(err, voting.ErrResultsHidden):
		return apperr.Forbidden("results_hidden", "results are published when the election closes", err)
	case errors.Is(err, election.ErrInvalidTransition):
		return apperr.Conflict("invalid_transition", err.Error(), err)
	case errors.Is(err, election.ErrImmutableElection):
		return apperr.Conflict("election_immutable", err.Error(), err)
	}

	if voting.Classify(err).Retryable() {
		return apperr.ServiceUnavailable("try_again", "temporary failure, retry the request", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.ServiceUnavailable("canceled", "request canceled", err)
	}
	return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
}
