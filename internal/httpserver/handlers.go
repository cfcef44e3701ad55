package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"blast/internal/domain"
	"blast/internal/observability"
	"blast/internal/store"
)

// Runner is the dispatch orchestrator surface the API needs.
type Runner interface {
	Run(ctx context.Context, req domain.DispatchRequest) (domain.DispatchSummary, error)
}

// Enqueuer hands a dispatch request to the job queue for a worker to pick
// up. Optional; when nil, async requests are rejected.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, req domain.DispatchRequest) error
}

type API struct {
	Runner      Runner
	Checkpoints store.CheckpointStore
	Queue       Enqueuer
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/campaigns/dispatch", a.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/campaigns/{id}/progress", a.handleProgress).Methods(http.MethodGet)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req domain.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidJSON})
		return
	}

	// the scheduler probes liveness with an empty request
	if req.CampaignID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "healthy"})
		return
	}

	if r.URL.Query().Get("async") == "true" {
		a.handleAsyncDispatch(w, r, req)
		return
	}

	summary, err := a.Runner.Run(r.Context(), req)
	if err != nil {
		var cfgErr domain.ConfigError
		if errors.As(err, &cfgErr) {
			observability.DispatchRuns.WithLabelValues("rejected").Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		slog.Error("dispatch run failed", "err", err, "campaign_id", req.CampaignID)
		observability.DispatchRuns.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	observability.DispatchRuns.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAsyncDispatch(w http.ResponseWriter, r *http.Request, req domain.DispatchRequest) {
	if a.Queue == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "async dispatch not configured"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := a.Queue.EnqueueDispatch(r.Context(), req); err != nil {
		slog.Error("enqueue dispatch failed", "err", err, "campaign_id", req.CampaignID)
		observability.Enqueues.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: ErrDependency})
		return
	}
	observability.Enqueues.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "campaignId": req.CampaignID})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	count, err := a.Checkpoints.ReadSentCount(r.Context(), id)
	if err != nil {
		slog.Error("read sent count failed", "err", err, "campaign_id", id)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: ErrDependency})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaignId": id, "sentCount": count})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
