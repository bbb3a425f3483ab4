package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/banditlab/internal/auth"
	"github.com/freeeve/banditlab/internal/config"
	"github.com/freeeve/banditlab/internal/model"
	"github.com/freeeve/banditlab/internal/service"
	"github.com/freeeve/banditlab/pkg/bandit"
)

const (
	maxExperimentBytes = 1 << 20
	defaultListLimit   = 20
	maxListLimit       = 100
)

// RunHandler serves the experiment run endpoints.
type RunHandler struct {
	svc *service.ExperimentService
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(svc *service.ExperimentService) *RunHandler {
	return &RunHandler{svc: svc}
}

// CreateRun handles POST /api/v1/runs. The body is a JSON experiment. With
// ?async=true the run is started in the background and 202 is returned with
// the run so clients can subscribe to its progress.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExperimentBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "experiment too large")
		return
	}
	exp, err := config.ParseExperiment(body, "json")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	client := auth.ClientFromContext(r.Context())
	if r.URL.Query().Get("async") != "true" {
		out, err := h.svc.Run(r.Context(), exp)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
		return
	}

	run, err := h.svc.Prepare(r.Context(), exp)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Respond before Execute starts mutating run.
	writeJSON(w, http.StatusAccepted, run)
	go func(ctx context.Context) {
		if _, err := h.svc.Execute(ctx, run, exp); err != nil {
			log.Warn().Err(err).Str("runId", run.ID).Str("client", client).Msg("Background run failed")
		}
	}(context.WithoutCancel(r.Context()))
}

// ListRuns handles GET /api/v1/runs?limit=
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListTrials handles GET /api/v1/runs/{id}/replications/{rep}/trials
func (h *RunHandler) ListTrials(w http.ResponseWriter, r *http.Request) {
	rep, err := strconv.Atoi(r.PathValue("rep"))
	if err != nil || rep < 0 {
		writeError(w, http.StatusBadRequest, "replication must be a non-negative integer")
		return
	}
	rows, err := h.svc.Trials(r.Context(), r.PathValue("id"), rep)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Leaderboard handles GET /api/v1/leaderboard/{experiment}?limit=
func (h *RunHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.Leaderboard(r.Context(), r.PathValue("experiment"), parseLimit(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ListStrategies handles GET /api/v1/strategies
func (h *RunHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bandit.Names())
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}
