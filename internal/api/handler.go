package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/behaviorsec/kestrel/internal/assess"
	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/model"
	"github.com/behaviorsec/kestrel/internal/policy"
	"github.com/behaviorsec/kestrel/internal/repository"
)

// GlobalTenantID is used for policies that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	service  *assess.Service
	policies *policy.Engine
	model    *model.Client
	handle   *model.Handle
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		service:  deps.Service,
		policies: deps.Policies,
		model:    deps.Model,
		handle:   deps.Handle,
		version:  deps.Version,
	}
}

// ValidateSample handles POST /v1/samples/validate: runs only the data
// quality gate and reports the additive result, valid or not.
func (h *Handler) ValidateSample(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	result, err := h.service.Validate(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ExtractFeatures handles POST /v1/features/extract.
func (h *Handler) ExtractFeatures(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	vector, err := h.service.Extract(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"features": vector,
		"count":    len(vector),
	})
}

// AssessRequest is the request body for POST /v1/assess.
type AssessRequest struct {
	SubjectID string          `json:"subjectId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Sample    json.RawMessage `json:"sample"`
}

// Assess handles POST /v1/assess: the full pipeline, synchronously.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Sample) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "sample is required",
		})
		return
	}

	assessment, err := h.service.Process(ctx, &assess.Request{
		TenantID:  tenantID,
		SubjectID: req.SubjectID,
		SessionID: req.SessionID,
		TraceID:   traceID,
		Payload:   req.Sample,
	})
	if err != nil {
		var verr *assess.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":      "sample failed quality validation",
				"validation": verr.Result,
			})
			return
		}
		slog.Error("assessment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetSample retrieves a stored sample record by ID.
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetSample(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "sample not found",
			})
			return
		}
		slog.Error("failed to get sample", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get sample",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ModelInfo handles GET /v1/model: proxied model service state.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model service not configured",
		})
		return
	}

	info, err := h.model.Info(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model service unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"available": h.handle.Available() && info.ModelLoaded,
		"info":      info,
	})
}

// TrainRequest is the request body for POST /v1/model/train.
type TrainRequest struct {
	Features [][]float64 `json:"features"`
	Labels   []int       `json:"labels"`
}

// TrainModel proxies labeled samples to the training collaborator.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model service not configured",
		})
		return
	}

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.model.Train(r.Context(), req.Features, req.Labels)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrModelUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "model service unavailable",
			})
		default:
			slog.Error("training failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "training failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ResetModel proxies a reset to the model service.
func (h *Handler) ResetModel(w http.ResponseWriter, r *http.Request) {
	if h.model == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model service not configured",
		})
		return
	}

	if err := h.model.Reset(r.Context()); err != nil {
		slog.Error("model reset failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model service unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "model reset",
	})
}

// ListPolicies returns all policies loaded in the engine.
// Policies are loaded from the database at startup and can be reloaded
// via POST /v1/policies/reload.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	loaded := h.policies.GetLoadedPolicies()

	writeJSON(w, http.StatusOK, map[string]any{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// GetPolicy retrieves a loaded policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	for _, p := range h.policies.GetLoadedPolicies() {
		if p.ID == policyID {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "policy not found",
	})
}

// CreatePolicyRequest is the request body for creating a policy.
type CreatePolicyRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Bands       []domain.PolicyBand `json:"bands"`
	Weight      float64             `json:"weight"`
	Enabled     bool                `json:"enabled"`
}

// CreatePolicy creates a new policy and saves it to the database.
// Policies are saved globally (tenant_id = "*") so they apply to all
// tenants. After saving, call POST /v1/policies/reload to apply.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.policies.LoadPolicy(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, GlobalTenantID, cfg); err != nil {
			slog.Error("failed to save policy", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	slog.Info("policy created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy":  cfg,
		"message": "Policy created. Call POST /v1/policies/reload to apply changes.",
	})
}

// DeletePolicy soft-deletes a policy and auto-reloads the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeletePolicy(ctx, GlobalTenantID, policyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}
		slog.Error("failed to delete policy", "id", policyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete policy",
		})
		return
	}

	if h.policies != nil {
		remaining, err := h.repo.ListPolicies(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload policies after delete", "error", err)
		} else if err := h.policies.ReloadPolicies(remaining); err != nil {
			slog.Error("failed to reload policy engine after delete", "error", err)
		}
	}

	slog.Info("policy deleted", "id", policyID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Policy deleted and engine reloaded.",
	})
}

// ReloadPolicies reloads all policies from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	dbPolicies, err := h.repo.ListPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.ReloadPolicies(dbPolicies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", len(dbPolicies))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "policies reloaded successfully",
		"count":   len(dbPolicies),
	})
}

// Health returns server health status. Model unavailability degrades
// health but never fails it: assessments still run on heuristics.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	modelStatus := "unconfigured"
	if h.handle.Available() {
		modelStatus = "available"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"model":   modelStatus,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
