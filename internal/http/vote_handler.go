package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"election-system/internal/domain/ballot"
	"election-system/internal/domain/voting"
	"election-system/internal/worker"
)

type voteRequest struct {
	CandidateID string `json:"candidate_id"`
}

type myVoteResponse struct {
	ElectionID string `json:"election_id"`
	HasVoted   bool   `json:"has_voted"`
}

// @Summary     Cast a vote
// @Description One vote per participant per election. A 503 response may be retried as is.
// @Tags        votes
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       id       path      string       true  "Election ID"
// @Param       request  body      voteRequest  true  "Vote payload"
// @Success     201      {object}  voting.Ack
// @Failure     400      {object}  map[string]string  "invalid body or unknown candidate"
// @Failure     401      {object}  map[string]string  "unauthorized"
// @Failure     403      {object}  map[string]string  "not eligible"
// @Failure     404      {object}  map[string]string  "not found"
// @Failure     409      {object}  map[string]string  "already voted or election not open"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Failure     503      {object}  map[string]string  "temporary failure"
// @Router      /api/v1/elections/{id}/votes [post]
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, err)
		return
	}

	ack, err := h.voting.SubmitVote(r.Context(), voting.VoteRequest{
		ElectionID:    chi.URLParam(r, "id"),
		ParticipantID: participantFromCtx(r),
		CandidateID:   req.CandidateID,
		Meta: ballot.Meta{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
		},
	})
	if err != nil {
		errorResponse(w, err)
		return
	}

	worker.Publish(h.voteCh, worker.VoteEvent{
		Kind:        worker.EventVoteAccepted,
		ElectionID:  ack.ElectionID,
		BallotID:    ack.BallotID,
		CandidateID: ack.CandidateID,
	})

	writeJSON(w, http.StatusCreated, ack)
}

// @Summary     Whether the caller has voted
// @Tags        votes
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  myVoteResponse
// @Failure     401  {object}  map[string]string  "unauthorized"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/votes/me [get]
func (h *Handler) handleMyVote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	voted, err := h.voting.HasVoted(r.Context(), id, participantFromCtx(r))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, myVoteResponse{ElectionID: id, HasVoted: voted})
}

// @Summary     Caller's ballots across elections
// @Tags        votes
// @Security    BearerAuth
// @Produce     json
// @Success     200  {array}   ballot.Ballot
// @Failure     401  {object}  map[string]string  "unauthorized"
// @Router      /api/v1/me/ballots [get]
func (h *Handler) handleMyBallots(w http.ResponseWriter, r *http.Request) {
	items, err := h.voting.ListParticipantBallots(r.Context(), participantFromCtx(r))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// @Summary     Election results
// @Description Participants see results once the election closes unless it publishes them live.
// @Tags        results
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  voting.Results
// @Failure     401  {object}  map[string]string  "unauthorized"
// @Failure     403  {object}  map[string]string  "results hidden until close"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/results [get]
func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.voting.GetResults(r.Context(), chi.URLParam(r, "id"), isOrganizer(r))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// @Summary     List ballots
// @Tags        ballots
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {array}   ballot.Ballot
// @Failure     403  {object}  map[string]string  "organizer role required"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/ballots [get]
func (h *Handler) handleListBallots(w http.ResponseWriter, r *http.Request) {
	items, err := h.voting.ListBallots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// @Summary     Retract a ballot
// @Description The participant stays marked as voted and cannot vote again.
// @Tags        ballots
// @Security    BearerAuth
// @Produce     json
// @Param       id        path      string  true  "Election ID"
// @Param       ballotID  path      string  true  "Ballot ID"
// @Success     200       {object}  ballot.Ballot
// @Failure     403       {object}  map[string]string  "organizer role required"
// @Failure     404       {object}  map[string]string  "not found or already retracted"
// @Router      /api/v1/elections/{id}/ballots/{ballotID} [delete]
func (h *Handler) handleRetractBallot(w http.ResponseWriter, r *http.Request) {
	b, err := h.voting.RetractBallot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ballotID"))
	if err != nil {
		errorResponse(w, err)
		return
	}

	worker.Publish(h.voteCh, worker.VoteEvent{
		Kind:        worker.EventBallotRetracted,
		ElectionID:  b.ElectionID,
		BallotID:    b.ID,
		CandidateID: b.CandidateID,
	})

	writeJSON(w, http.StatusOK, b)
}

// @Summary     Turnout statistics
// @Tags        results
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  voting.Stats
// @Failure     403  {object}  map[string]string  "organizer role required"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/stats [get]
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.voting.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary     Reconcile tally
// @Description Recounts ballots and repairs the running tally if it drifted.
// @Tags        results
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  tally.ReconcileReport
// @Failure     403  {object}  map[string]string  "organizer role required"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/reconcile [post]
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.voting.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// @Summary     Reconciliation history
// @Description Repairs recorded for the election, newest first.
// @Tags        results
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {array}   tally.ReconcileReport
// @Failure     403  {object}  map[string]string  "organizer role required"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id}/reconciliations [get]
func (h *Handler) handleReconciliations(w http.ResponseWriter, r *http.Request) {
	reports, err := h.voting.ReconciliationHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}
