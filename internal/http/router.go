package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"election-system/internal/domain/election"
	"election-system/internal/domain/voting"
	"election-system/internal/platform/apperr"
	jwtpkg "election-system/internal/platform/jwt"
	"election-system/internal/worker"
)

// ReadyFunc reports whether the backing store can serve requests.
type ReadyFunc func(ctx context.Context) error

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Elections *election.Service
	Voting    *voting.Coordinator
	JWT       *jwtpkg.Manager
	VoteCh    chan<- worker.VoteEvent
	Ready     ReadyFunc

	VoteRate  rate.Limit
	VoteBurst int
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Enable it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

type Handler struct {
	elections *election.Service
	voting    *voting.Coordinator
	jwtMgr    *jwtpkg.Manager
	voteCh    chan<- worker.VoteEvent
	ready     ReadyFunc
}

func NewRouter(d Deps) http.Handler {
	h := &Handler{
		elections: d.Elections,
		voting:    d.Voting,
		jwtMgr:    d.JWT,
		voteCh:    d.VoteCh,
		ready:     d.Ready,
	}
	if d.VoteRate <= 0 {
		d.VoteRate = rate.Every(time.Minute / 60)
	}
	if d.VoteBurst <= 0 {
		d.VoteBurst = 10
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.JWT))

		r.Get("/elections", h.handleListElections)
		r.Get("/elections/{id}", h.handleGetElection)
		r.With(RateLimitVotes(d.VoteRate, d.VoteBurst)).Post("/elections/{id}/votes", h.handleVote)
		r.Get("/elections/{id}/votes/me", h.handleMyVote)
		r.Get("/elections/{id}/results", h.handleResults)
		r.Get("/me/ballots", h.handleMyBallots)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(jwtpkg.RoleOrganizer))
			r.Post("/elections", h.handleCreateElection)
			r.Patch("/elections/{id}", h.handleUpdateElection)
			r.Post("/elections/{id}/publish", h.handlePublishElection)
			r.Delete("/elections/{id}", h.handleDeleteElection)
			r.Get("/elections/{id}/ballots", h.handleListBallots)
			r.Delete("/elections/{id}/ballots/{ballotID}", h.handleRetractBallot)
			r.Get("/elections/{id}/stats", h.handleStats)
			r.Post("/elections/{id}/reconcile", h.handleReconcile)
			r.Get("/elections/{id}/reconciliations", h.handleReconciliations)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.BadRequest("invalid_input", "invalid body", err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.BadRequest("invalid_input", "invalid "+name, err)
	}
	return n, nil
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "db_unavailable",
			"message": "database not ready",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
