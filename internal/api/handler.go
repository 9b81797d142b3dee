package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/senna-project/senninha/internal/banks"
	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/profile"
	"github.com/senna-project/senninha/internal/rules"
	"github.com/senna-project/senninha/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	worker   *worker.Worker
	engine   *rules.Engine
	registry *banks.Registry
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, w *worker.Worker, engine *rules.Engine, registry *banks.Registry, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		worker:   w,
		engine:   engine,
		registry: registry,
		version:  version,
	}
}

// BatchRequest is the request body for POST /batches: the extracted debt
// lines of one map batch. Async batches are queued on the event bus and
// evaluated by the worker; synchronous batches return the full evaluation.
type BatchRequest struct {
	ID    string            `json:"id,omitempty"`
	Lines []domain.DebtLine `json:"dividas"`
	Async bool              `json:"async,omitempty"`
}

// BatchResponse is the response for a synchronous POST /batches.
type BatchResponse struct {
	EvaluationID     string                 `json:"evaluationId"`
	BatchID          string                 `json:"batchId"`
	ClientsEvaluated int                    `json:"clientsEvaluated"`
	ClientsQualified int                    `json:"clientsQualified"`
	Summaries        []domain.ClientSummary `json:"resumos"`
	Metadata         struct {
		TraceID string `json:"traceId"`
		EvalMs  int64  `json:"evalMs"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// CreateBatch handles POST /batches requests.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dividas must contain at least one debt line",
		})
		return
	}
	for i := range req.Lines {
		if req.Lines[i].TaxID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "every debt line requires a nif",
			})
			return
		}
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	batch := &domain.Batch{ID: req.ID, Lines: req.Lines}

	// Persist the raw batch; evaluation proceeds even when the save fails.
	if h.repo != nil {
		if err := h.repo.SaveBatch(ctx, batch); err != nil {
			slog.Error("failed to save batch", "batch_id", batch.ID, "error", err)
		}
	}

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}
		payload, _ := json.Marshal(worker.BatchMessage{
			BatchID: batch.ID,
			TraceID: traceID,
			Lines:   batch.Lines,
		})
		if err := h.bus.Publish(ctx, domain.TopicBatchExtracted, payload); err != nil {
			slog.Error("failed to publish batch", "batch_id", batch.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue batch",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"batchId": batch.ID,
			"status":  "accepted",
		})
		return
	}

	if h.worker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "evaluation worker not available",
		})
		return
	}

	evaluation, err := h.worker.ProcessBatch(ctx, traceID, batch)
	if err != nil {
		slog.Error("batch evaluation failed", "batch_id", batch.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch evaluation failed",
		})
		return
	}

	qualified := 0
	for i := range evaluation.Summaries {
		if evaluation.Summaries[i].Qualifies {
			qualified++
		}
	}

	resp := BatchResponse{
		EvaluationID:     evaluation.ID,
		BatchID:          batch.ID,
		ClientsEvaluated: len(evaluation.Summaries),
		ClientsQualified: qualified,
		Summaries:        evaluation.Summaries,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.EvalMs = evaluation.Metadata.EvalMs
	resp.Metadata.TotalMs = evaluation.Metadata.TotalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetBatch retrieves a stored batch by ID.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "id")

	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	batch, err := h.repo.GetBatch(ctx, batchID)
	if err != nil {
		slog.Error("failed to get batch", "id", batchID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "batch not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, evalID)
	if err != nil {
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetClient returns the latest summary and evaluated lines for one NIF. The
// summary is served from cache when warm; lines always come from the
// repository.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taxID := chi.URLParam(r, "nif")

	if taxID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "nif is required",
		})
		return
	}

	var summary *domain.ClientSummary
	if h.cache != nil {
		cached, err := h.cache.GetSummary(ctx, taxID)
		if err == nil && cached != nil {
			summary = cached
		}
	}

	if summary == nil {
		if h.repo == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "repository not available",
			})
			return
		}
		stored, err := h.repo.GetClientSummary(ctx, taxID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "client not found",
			})
			return
		}
		summary = stored
	}

	var lines []domain.DebtLine
	if h.repo != nil {
		stored, err := h.repo.GetClientLines(ctx, taxID)
		if err != nil {
			slog.Error("failed to get client lines", "nif", taxID, "error", err)
		} else {
			lines = stored
		}
	}

	writeJSON(w, http.StatusOK, domain.ClientResult{
		Summary: *summary,
		Lines:   lines,
	})
}

// GetClientRejections rebuilds the rejection report for one NIF from the
// stored evaluated lines.
func (h *Handler) GetClientRejections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taxID := chi.URLParam(r, "nif")

	if taxID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "nif is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	lines, err := h.repo.GetClientLines(ctx, taxID)
	if err != nil || len(lines) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "client not found",
		})
		return
	}

	result := &profile.Result{Lines: lines}
	if summary, err := h.repo.GetClientSummary(ctx, taxID); err == nil && summary != nil {
		result.Summaries = []domain.ClientSummary{*summary}
	}

	report := result.Rejections(taxID)
	if report == nil {
		// All lines eligible, nothing to explain.
		writeJSON(w, http.StatusOK, &domain.RejectionReport{})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetBanks exposes the pari/persi bank registry read-only.
func (h *Handler) GetBanks(w http.ResponseWriter, r *http.Request) {
	thresholds := h.registry.Thresholds()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"banks": thresholds,
		"count": len(thresholds),
	})
}

// ListRules returns all loaded custom exclusion rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom exclusion rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates, loads and persists a new custom exclusion rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression before anything is persisted.
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if ruleConfig.Enabled {
		if err := h.engine.LoadRule(ruleConfig); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": ruleConfig,
	})
}

// DeleteRule disables a rule and reloads the engine from the database.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteRuleConfig(ctx, ruleID); err != nil {
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload after delete so the engine drops the rule immediately.
	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
