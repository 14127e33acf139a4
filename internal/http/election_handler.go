package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"election-system/internal/domain/election"
	"election-system/internal/platform/apperr"
)

type createElectionRequest struct {
	Title                string                     `json:"title"`
	Description          string                     `json:"description"`
	StartAt              time.Time                  `json:"start_at"`
	EndAt                time.Time                  `json:"end_at"`
	Candidates           []election.CandidateInput  `json:"candidates"`
	Eligibility          election.EligibilityMode   `json:"eligibility"`
	EligibleParticipants []string                   `json:"eligible_participants"`
	ResultsVisibility    election.ResultsVisibility `json:"results_visibility"`
}

type updateElectionRequest struct {
	Title                *string                     `json:"title"`
	Description          *string                     `json:"description"`
	StartAt              *time.Time                  `json:"start_at"`
	EndAt                *time.Time                  `json:"end_at"`
	Candidates           []election.CandidateInput   `json:"candidates"`
	Eligibility          *election.EligibilityMode   `json:"eligibility"`
	EligibleParticipants []string                    `json:"eligible_participants"`
	ResultsVisibility    *election.ResultsVisibility `json:"results_visibility"`
}

// electionResponse carries the phase derived at request time next to the record.
type electionResponse struct {
	election.Election
	Phase election.Phase `json:"phase"`
}

func (h *Handler) present(e election.Election, organizer bool) electionResponse {
	if !organizer {
		e.EligibleIDs = nil
	}
	return electionResponse{Election: e, Phase: e.PhaseAt(h.elections.Now())}
}

// @Summary     Create election
// @Tags        elections
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       request  body      createElectionRequest  true  "Election configuration"
// @Success     201      {object}  electionResponse
// @Failure     400      {object}  map[string]string  "invalid configuration"
// @Failure     401      {object}  map[string]string  "unauthorized"
// @Failure     403      {object}  map[string]string  "organizer role required"
// @Router      /api/v1/elections [post]
func (h *Handler) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	var req createElectionRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, err)
		return
	}

	e, err := h.elections.Create(r.Context(), election.Config{
		Title:             req.Title,
		Description:       req.Description,
		StartAt:           req.StartAt,
		EndAt:             req.EndAt,
		Candidates:        req.Candidates,
		Eligibility:       req.Eligibility,
		EligibleIDs:       req.EligibleParticipants,
		ResultsVisibility: req.ResultsVisibility,
		OwnerID:           participantFromCtx(r),
	})
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.present(*e, true))
}

// @Summary     List elections
// @Tags        elections
// @Security    BearerAuth
// @Produce     json
// @Param       phase   query     string  false  "draft, pending, open or closed"
// @Param       owner   query     string  false  "Owner participant id"
// @Param       limit   query     int     false  "Page size"
// @Param       offset  query     int     false  "Page offset"
// @Success     200     {array}   electionResponse
// @Failure     400     {object}  map[string]string  "invalid filter"
// @Failure     401     {object}  map[string]string  "unauthorized"
// @Router      /api/v1/elections [get]
func (h *Handler) handleListElections(w http.ResponseWriter, r *http.Request) {
	f := election.Filter{OwnerID: r.URL.Query().Get("owner")}
	if raw := r.URL.Query().Get("phase"); raw != "" {
		phase := election.Phase(raw)
		if !phase.Valid() {
			errorResponse(w, apperr.BadRequest("invalid_input", "invalid phase", nil))
			return
		}
		f.Phase = &phase
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		errorResponse(w, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		errorResponse(w, err)
		return
	}

	organizer := isOrganizer(r)
	if !organizer && f.Phase != nil && *f.Phase == election.PhaseDraft {
		writeJSON(w, http.StatusOK, []electionResponse{})
		return
	}

	items, err := h.elections.List(r.Context(), f)
	if err != nil {
		errorResponse(w, err)
		return
	}
	res := make([]electionResponse, 0, len(items))
	for _, e := range items {
		if !organizer && e.Status == election.StatusDraft {
			continue
		}
		res = append(res, h.present(e, organizer))
	}
	writeJSON(w, http.StatusOK, res)
}

// @Summary     Get election
// @Tags        elections
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  electionResponse
// @Failure     401  {object}  map[string]string  "unauthorized"
// @Failure     404  {object}  map[string]string  "not found"
// @Router      /api/v1/elections/{id} [get]
func (h *Handler) handleGetElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.elections.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	organizer := isOrganizer(r)
	if !organizer && e.Status == election.StatusDraft {
		errorResponse(w, election.ErrElectionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*e, organizer))
}

// @Summary     Update election
// @Description Only drafts and published elections that have not opened yet can change.
// @Tags        elections
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       id       path      string                 true  "Election ID"
// @Param       request  body      updateElectionRequest  true  "Fields to change"
// @Success     200      {object}  electionResponse
// @Failure     400      {object}  map[string]string  "invalid configuration"
// @Failure     404      {object}  map[string]string  "not found"
// @Failure     409      {object}  map[string]string  "election already open or closed"
// @Router      /api/v1/elections/{id} [patch]
func (h *Handler) handleUpdateElection(w http.ResponseWriter, r *http.Request) {
	var req updateElectionRequest
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, err)
		return
	}

	e, err := h.elections.Update(r.Context(), chi.URLParam(r, "id"), election.UpdateInput{
		Title:             req.Title,
		Description:       req.Description,
		StartAt:           req.StartAt,
		EndAt:             req.EndAt,
		Candidates:        req.Candidates,
		Eligibility:       req.Eligibility,
		EligibleIDs:       req.EligibleParticipants,
		ResultsVisibility: req.ResultsVisibility,
	})
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*e, true))
}

// @Summary     Publish election
// @Tags        elections
// @Security    BearerAuth
// @Produce     json
// @Param       id   path      string  true  "Election ID"
// @Success     200  {object}  electionResponse
// @Failure     404  {object}  map[string]string  "not found"
// @Failure     409  {object}  map[string]string  "not a draft or window already ended"
// @Router      /api/v1/elections/{id}/publish [post]
func (h *Handler) handlePublishElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.elections.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*e, true))
}

// @Summary     Delete draft election
// @Tags        elections
// @Security    BearerAuth
// @Param       id   path  string  true  "Election ID"
// @Success     204
// @Failure     404  {object}  map[string]string  "not found"
// @Failure     409  {object}  map[string]string  "election is published"
// @Router      /api/v1/elections/{id} [delete]
func (h *Handler) handleDeleteElection(w http.ResponseWriter, r *http.Request) {
	if err := h.elections.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
