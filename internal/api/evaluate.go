package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/LimmatCapital/Verdict/internal/calibration"
	"github.com/LimmatCapital/Verdict/internal/config"
	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

type EvaluateHandler struct {
	store  store.Store
	engine *scoring.Engine
	events herald.Client
	cfg    *config.Config
	logger *slog.Logger
}

func NewEvaluateHandler(s store.Store, engine *scoring.Engine, events herald.Client, cfg *config.Config, logger *slog.Logger) *EvaluateHandler {
	return &EvaluateHandler{store: s, engine: engine, events: events, cfg: cfg, logger: logger}
}

// Evaluate scores one application. Repeated request_ids replay the stored
// response instead of scoring again.
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req scoring.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if violations := req.Validate(); len(violations) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "validation failed",
			"violations": violations,
		})
		return
	}

	existing, err := h.store.GetAssessmentByRequestID(r.Context(), req.RequestID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if existing != nil {
		h.logger.Info("duplicate request replayed",
			"request_id", req.RequestID, "assessment_id", existing.AssessmentID)
		writeJSON(w, http.StatusOK, existing.ResponsePayload)
		return
	}

	h.enrichDealerRate(r, &req)

	result, err := h.engine.Evaluate(r.Context(), &req)
	if err != nil {
		if errors.Is(err, calibration.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("evaluation failed", "request_id", req.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scoring engine error: " + err.Error()})
		return
	}

	assessment := &store.Assessment{
		AssessmentID:     result.AssessmentID,
		RequestID:        req.RequestID,
		ContractID:       req.Contract.ContractID,
		CustomerID:       req.Customer.CustomerID,
		DealerID:         req.Dealer.DealerID,
		VersionID:        result.ModelVersion,
		TotalScore:       result.TotalScore,
		Tier:             result.Tier,
		Decision:         result.Decision,
		EstimatedPD:      result.ProbabilityOfDefault,
		FactorScores:     toMaps(result.FactorScores),
		DSCR:             toMap(result.DSCR),
		TriggeredRules:   toMaps(result.TriggeredRules),
		DefaultsApplied:  toMaps(result.DefaultsApplied),
		LegacyScore:      result.LegacyScore,
		LegacyBand:       result.LegacyBand,
		RequestPayload:   toMap(req),
		ResponsePayload:  toMap(result),
		ProcessingTimeMs: result.ProcessingTimeMs,
		EvaluatedAt:      result.EvaluatedAt,
	}
	if err := h.store.CreateAssessment(r.Context(), assessment); err != nil {
		// A concurrent request with the same request_id won the insert
		// between our replay lookup and now; serve its stored response.
		if errors.Is(err, store.ErrDuplicateRequest) {
			stored, lookupErr := h.store.GetAssessmentByRequestID(r.Context(), req.RequestID)
			if lookupErr == nil && stored != nil {
				h.logger.Info("concurrent duplicate replayed",
					"request_id", req.RequestID, "assessment_id", stored.AssessmentID)
				writeJSON(w, http.StatusOK, stored.ResponsePayload)
				return
			}
		}
		h.logger.Error("assessment persist failed", "request_id", req.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	evaluationsTotal.WithLabelValues(result.Tier, result.Decision).Inc()
	evaluationSeconds.Observe(time.Since(start).Seconds())
	for _, hit := range result.TriggeredRules {
		ruleTriggersTotal.WithLabelValues(hit.RuleCode).Inc()
	}

	if h.cfg.Scoring.LogDefaults && len(result.DefaultsApplied) > 0 {
		fields := make([]string, len(result.DefaultsApplied))
		for i, d := range result.DefaultsApplied {
			fields[i] = d.Field
		}
		h.logger.Info("defaults substituted", "request_id", req.RequestID, "fields", fields)
	}

	if h.events != nil {
		_ = h.events.Publish(herald.SubjectAssessmentCompleted(result.AssessmentID.String()), herald.AssessmentCompletedEvent{
			AssessmentID:   result.AssessmentID.String(),
			RequestID:      req.RequestID,
			ModelVersion:   result.ModelVersion,
			TotalScore:     result.TotalScore,
			Tier:           result.Tier,
			Decision:       result.Decision,
			PartyType:      req.Customer.PartyType,
			DealerID:       req.Dealer.DealerID,
			RulesTriggered: len(result.TriggeredRules),
		})
	}

	writeJSON(w, http.StatusOK, result)
}

// enrichDealerRate fills dealer_default_rate from the latest metrics snapshot
// when the caller did not supply one. Unknown dealers stay nil and route to
// the factor's missing-value bin.
func (h *EvaluateHandler) enrichDealerRate(r *http.Request, req *scoring.EvaluationRequest) {
	if req.Dealer.DefaultRate != nil || req.Dealer.DealerID == "" {
		return
	}
	rates, err := h.store.GetLatestDealerRates(r.Context())
	if err != nil {
		h.logger.Warn("dealer rate lookup failed", "dealer_id", req.Dealer.DealerID, "error", err)
		return
	}
	if rate, ok := rates[req.Dealer.DealerID]; ok {
		req.Dealer.DefaultRate = &rate
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func toMaps(v interface{}) []map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return out
}
