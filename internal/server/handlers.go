package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/genbot-io/genrelay/internal/job"
	"github.com/genbot-io/genrelay/internal/orchestrator"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	orch      *orchestrator.Orchestrator
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orch *orchestrator.Orchestrator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		orch:      orch,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests. The job is accepted and returned
// immediately; generation runs in the background and may queue behind the
// owner's previous job or the global concurrency ceiling.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	created, err := h.orch.Start(r.Context(), req.OwnerKey, req.Prompt, req.Provider)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, "unknown provider", "UNKNOWN_PROVIDER")
			return
		}
		h.logger.Error("failed to start job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start job", "JOB_START_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:       created.ID,
		State:    string(created.State),
		Provider: created.Provider,
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.orch.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// ListJobs handles GET /jobs?owner_key=... requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerKey := r.URL.Query().Get("owner_key")
	if ownerKey == "" {
		writeError(w, http.StatusBadRequest, "owner_key query parameter is required", "MISSING_OWNER_KEY")
		return
	}

	jobs, err := h.orch.ListByOwner(r.Context(), ownerKey)
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("owner_key", ownerKey),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /jobs/{id} requests. Cancellation is cooperative:
// the request sets a flag the lifecycle observes at its next checkpoint, so
// a successful response means "requested", not "cancelled".
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.orch.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, orchestrator.ErrJobNotActive):
			writeError(w, http.StatusConflict, "job already finished", "JOB_NOT_ACTIVE")
		default:
			h.logger.Error("failed to cancel job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		}
		return
	}

	state := string(job.StatePending)
	if snapshot, err := h.orch.Status(r.Context(), jobID); err == nil {
		state = string(snapshot.State)
	}

	writeJSON(w, http.StatusAccepted, CancelJobResponse{
		ID:    jobID,
		State: state,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
