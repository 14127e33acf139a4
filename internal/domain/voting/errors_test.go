package voting

import (
	"errors"
	"fmt"
	"testing"

	"election-system/internal/domain/ballot"
	"election-system/internal/domain/election"
	"election-system/internal/platform/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		kind   apperr.Kind
		reason string
	}{
		{&election.ValidationError{Field: "title", Reason: "required"}, apperr.KindValidation, "internal"},
		{ballot.ErrInvalidBallot, apperr.KindValidation, "invalid_ballot"},
		{fmt.Errorf("%w: election is closed", ErrElectionNotOpen), apperr.KindPolicy, "election_not_open"},
		{ErrNotEligible, apperr.KindPolicy, "not_eligible"},
		{ErrUnknownCandidate, apperr.KindPolicy, "unknown_candidate"},
		{ballot.ErrAlreadyVoted, apperr.KindPolicy, "already_voted"},
		{ErrResultsHidden, apperr.KindPolicy, "internal"},
		{election.ErrElectionNotFound, apperr.KindNotFound, "election_not_found"},
		{ballot.ErrBallotNotFound, apperr.KindNotFound, "internal"},
		{fmt.Errorf("%w: reset", ErrTransient), apperr.KindTransient, "transient"},
		{errors.New("boom"), apperr.KindInternal, "internal"},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.kind {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.kind)
		}
		if got := Reason(tc.err); got != tc.reason {
			t.Errorf("Reason(%v) = %s, want %s", tc.err, got, tc.reason)
		}
	}
	if Reason(nil) != "accepted" {
		t.Errorf("expected accepted for nil")
	}
}
