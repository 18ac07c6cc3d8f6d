package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LimmatCapital/Verdict/internal/calibration"
	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

// CalibrationHandler exposes the model lifecycle to risk operations: draft,
// inspect, patch, validate, publish, audit.
type CalibrationHandler struct {
	store   store.Store
	service *calibration.Service
}

func NewCalibrationHandler(s store.Store, service *calibration.Service) *CalibrationHandler {
	return &CalibrationHandler{store: s, service: service}
}

func (h *CalibrationHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.store.ListVersions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if versions == nil {
		versions = []*store.ModelVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

type CreateDraftRequest struct {
	VersionID   string `json:"version_id"`
	BaseVersion string `json:"base_version,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *CalibrationHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.VersionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "version_id required"})
		return
	}

	draft, err := h.service.CreateDraft(r.Context(), req.VersionID, req.BaseVersion, req.Description, caller(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (h *CalibrationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")
	v, err := h.service.Publish(r.Context(), versionID, caller(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	modelPublishesTotal.Inc()
	writeJSON(w, http.StatusOK, v)
}

func (h *CalibrationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")
	if err := h.service.Validate(r.Context(), versionID); err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid", "model_version": versionID})
}

func (h *CalibrationHandler) Audit(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.service.Audit(r.Context(), versionID, limit)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *CalibrationHandler) Factors(w http.ResponseWriter, r *http.Request) {
	factors, err := h.store.GetFactors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if factors == nil {
		factors = []*store.FactorConfig{}
	}
	writeJSON(w, http.StatusOK, factors)
}

func (h *CalibrationHandler) PatchFactor(w http.ResponseWriter, r *http.Request) {
	var patch calibration.FactorPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	f, err := h.service.UpdateFactor(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), patch, caller(r), changeReason(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *CalibrationHandler) Bins(w http.ResponseWriter, r *http.Request) {
	bins, err := h.store.GetBins(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if bins == nil {
		bins = []*store.FactorBin{}
	}
	writeJSON(w, http.StatusOK, bins)
}

func (h *CalibrationHandler) PatchBin(w http.ResponseWriter, r *http.Request) {
	binID, err := strconv.ParseInt(chi.URLParam(r, "binID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bin id"})
		return
	}
	var patch calibration.BinPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	b, err := h.service.UpdateBin(r.Context(), chi.URLParam(r, "id"), binID, patch, caller(r), changeReason(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *CalibrationHandler) Tiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.store.GetTiers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tiers == nil {
		tiers = []*store.TierThreshold{}
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (h *CalibrationHandler) PatchTier(w http.ResponseWriter, r *http.Request) {
	tierID, err := strconv.ParseInt(chi.URLParam(r, "tierID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tier id"})
		return
	}
	var patch calibration.TierPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.service.UpdateTier(r.Context(), chi.URLParam(r, "id"), tierID, patch, caller(r), changeReason(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *CalibrationHandler) Rules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.GetRules(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rules == nil {
		rules = []*store.BusinessRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *CalibrationHandler) PatchRule(w http.ResponseWriter, r *http.Request) {
	var patch calibration.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rule, err := h.service.UpdateRule(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "code"), patch, caller(r), changeReason(r))
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func caller(r *http.Request) string {
	return r.Header.Get("X-Caller-ID")
}

// changeReason is the audit reason for calibration edits, supplied by the
// operator in the X-Change-Reason header.
func changeReason(r *http.Request) string {
	return r.Header.Get("X-Change-Reason")
}

// writeCalibrationError maps the calibration error taxonomy onto HTTP
// statuses: unknown ids 404, duplicate drafts 409, edits to published or
// archived versions 409, failed validations 422 with the violation list.
func writeCalibrationError(w http.ResponseWriter, err error) {
	var immutable *calibration.ImmutableVersionError
	var invalid *calibration.ValidationError
	var confErr *scoring.ConfigError

	switch {
	case errors.Is(err, calibration.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, calibration.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &immutable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": immutable.Error()})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "validation failed",
			"violations": invalid.Violations,
		})
	case errors.As(err, &confErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": confErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
