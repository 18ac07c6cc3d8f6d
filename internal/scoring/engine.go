package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// State names one stage of an assessment's lifecycle. Every evaluation
// walks RECEIVED through FINALIZED; a hard rule hit jumps straight from
// RULES_EVALUATED to FINALIZED without scoring.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateRulesEvaluated State = "RULES_EVALUATED"
	StateScored         State = "SCORED"
	StateClassified     State = "CLASSIFIED"
	StateFinalized      State = "FINALIZED"
)

var stateTransitions = map[State][]State{
	StateReceived:       {StateRulesEvaluated},
	StateRulesEvaluated: {StateScored, StateFinalized},
	StateScored:         {StateClassified},
	StateClassified:     {StateFinalized},
}

// Result is the immutable outcome of one evaluation.
type Result struct {
	RequestID            string           `json:"request_id"`
	AssessmentID         uuid.UUID        `json:"assessment_id"`
	ModelVersion         string           `json:"model_version"`
	TotalScore           float64          `json:"total_score"`
	Tier                 string           `json:"tier"`
	Decision             string           `json:"decision"`
	ProbabilityOfDefault *float64         `json:"probability_of_default,omitempty"`
	FactorScores         []FactorScore    `json:"factor_scores"`
	DSCR                 DSCRResult       `json:"dscr"`
	TriggeredRules       []RuleHit        `json:"triggered_rules,omitempty"`
	DefaultsApplied      []DefaultApplied `json:"defaults_applied,omitempty"`
	LegacyScore          *int             `json:"legacy_score,omitempty"`
	LegacyBand           *string          `json:"legacy_band,omitempty"`
	EvaluatedAt          time.Time        `json:"evaluated_at"`
	ProcessingTimeMs     int              `json:"processing_time_ms"`
}

// Engine runs evaluations against snapshots resolved per request. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	resolver VersionResolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(resolver VersionResolver, logger *slog.Logger) *Engine {
	return &Engine{resolver: resolver, logger: logger, now: time.Now}
}

// Evaluate scores one request. Hard rules run before any factor is binned:
// a hit forces the rule's tier and decision and leaves the factor breakdown
// empty with a zero total. Otherwise the composite is the unweighted sum of
// bin scores and the tier table decides.
func (e *Engine) Evaluate(ctx context.Context, req *EvaluationRequest) (*Result, error) {
	start := e.now()
	state := StateReceived

	snap, err := e.resolver.Resolve(ctx, req.ModelVersion)
	if err != nil {
		return nil, err
	}

	dscr, defaults := ComputeDSCR(req)
	attrs, derived := DeriveAttributes(req, dscr, start)
	defaults = append(defaults, derived...)

	res := &Result{
		RequestID:       req.RequestID,
		AssessmentID:    uuid.New(),
		ModelVersion:    snap.VersionID,
		FactorScores:    []FactorScore{},
		DSCR:            dscr,
		DefaultsApplied: defaults,
		EvaluatedAt:     start.UTC(),
	}

	kill, advisories := EvaluateRules(snap, attrs, e.logger)
	state = e.transition(req.RequestID, state, StateRulesEvaluated)

	if kill != nil {
		res.TriggeredRules = append([]RuleHit{*kill}, advisories...)
		res.Tier = kill.ForcedTier
		res.Decision = kill.ForcedDecision
		if t := snap.Tier(kill.ForcedTier); t != nil {
			res.ProbabilityOfDefault = t.EstimatedPD
		}
		state = e.transition(req.RequestID, state, StateFinalized)
	} else {
		scores, total, err := ScoreFactors(snap, attrs)
		if err != nil {
			return nil, err
		}
		state = e.transition(req.RequestID, state, StateScored)

		tier, err := ClassifyTier(snap, total)
		if err != nil {
			return nil, err
		}
		state = e.transition(req.RequestID, state, StateClassified)

		res.FactorScores = scores
		res.TotalScore = total
		res.TriggeredRules = advisories
		res.Tier = tier.TierName
		res.Decision = tier.Decision
		res.ProbabilityOfDefault = tier.EstimatedPD
		state = e.transition(req.RequestID, state, StateFinalized)
	}

	res.LegacyScore, res.LegacyBand = ComputeLegacyScore(req, dscr, start)
	res.ProcessingTimeMs = int(e.now().Sub(start).Milliseconds())

	e.logger.Info("risk evaluation complete",
		"request_id", res.RequestID,
		"assessment_id", res.AssessmentID,
		"party_type", req.Customer.PartyType,
		"model_version", res.ModelVersion,
		"total_score", res.TotalScore,
		"tier", res.Tier,
		"decision", res.Decision,
		"rules_triggered", len(res.TriggeredRules),
		"state", state,
		"elapsed_ms", res.ProcessingTimeMs)

	return res, nil
}

func (e *Engine) transition(requestID string, from, to State) State {
	allowed := false
	for _, next := range stateTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		e.logger.Error("illegal assessment state transition",
			"request_id", requestID, "from", from, "to", to)
		return from
	}
	e.logger.Debug("assessment state transition",
		"request_id", requestID, "from", from, "to", to)
	return to
}
