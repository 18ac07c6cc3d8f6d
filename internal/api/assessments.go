package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/store"
)

type AssessmentsHandler struct {
	store  store.Store
	events herald.Client
}

func NewAssessmentsHandler(s store.Store, events herald.Client) *AssessmentsHandler {
	return &AssessmentsHandler{store: s, events: events}
}

func (h *AssessmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Explain returns the factor breakdown behind a decision.
// GET /api/v1/risk/assessments/{id}/explain
func (h *AssessmentsHandler) Explain(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}

	resp := map[string]interface{}{
		"assessment_id": a.AssessmentID,
		"request_id":    a.RequestID,
		"model_version": a.VersionID,
		"total_score":   a.TotalScore,
		"tier":          a.Tier,
		"decision":      a.Decision,
		"factor_scores": a.FactorScores,
	}
	if a.EstimatedPD != nil {
		resp["estimated_pd"] = *a.EstimatedPD
	}
	if a.DSCR != nil {
		resp["dscr"] = a.DSCR
	}
	if len(a.TriggeredRules) > 0 {
		resp["triggered_rules"] = a.TriggeredRules
	}
	if len(a.DefaultsApplied) > 0 {
		resp["defaults_applied"] = a.DefaultsApplied
	}
	if a.LegacyScore != nil {
		resp["legacy_score"] = *a.LegacyScore
	}
	if a.LegacyBand != nil {
		resp["legacy_band"] = *a.LegacyBand
	}
	if a.OverrideDecision != "" {
		resp["override_decision"] = a.OverrideDecision
		resp["override_by"] = a.OverrideBy
		resp["override_reason"] = a.OverrideReason
	}

	writeJSON(w, http.StatusOK, resp)
}

type OverrideRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Override records an analyst decision on top of the engine's. The scored
// decision stays on the assessment; the override rides alongside it.
func (h *AssessmentsHandler) Override(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Decision == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision and reason required"})
		return
	}

	actor := r.Header.Get("X-Caller-ID")
	if err := h.store.SetAssessmentOverride(r.Context(), a.AssessmentID, req.Decision, actor, req.Reason); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.events != nil {
		_ = h.events.Publish(herald.SubjectAssessmentOverridden(a.AssessmentID.String()), herald.AssessmentOverriddenEvent{
			AssessmentID:     a.AssessmentID.String(),
			OriginalDecision: a.Decision,
			OverrideDecision: req.Decision,
			OverriddenBy:     actor,
			Reason:           req.Reason,
		})
	}

	updated, err := h.store.GetAssessment(r.Context(), a.AssessmentID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// List serves the admin assessment browser.
// GET /api/v1/admin/assessments
func (h *AssessmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.AssessmentFilter{
		Tier:       r.URL.Query().Get("tier"),
		Decision:   r.URL.Query().Get("decision"),
		DealerID:   r.URL.Query().Get("dealer_id"),
		CustomerID: r.URL.Query().Get("customer_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	assessments, err := h.store.ListAssessments(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if assessments == nil {
		assessments = []*store.Assessment{}
	}
	writeJSON(w, http.StatusOK, assessments)
}

func (h *AssessmentsHandler) load(w http.ResponseWriter, r *http.Request) (*store.Assessment, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid assessment id"})
		return nil, false
	}
	a, err := h.store.GetAssessment(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "assessment not found"})
		return nil, false
	}
	return a, true
}
