package scoring

import (
	"fmt"
	"log/slog"

	"github.com/LimmatCapital/Verdict/internal/store"
)

// RuleHit records one triggered business rule on an assessment.
type RuleHit struct {
	RuleCode       string             `json:"rule_code"`
	RuleName       string             `json:"rule_name"`
	Description    string             `json:"description,omitempty"`
	TriggeredValue string             `json:"triggered_value"`
	Severity       store.RuleSeverity `json:"severity"`
	ForcedTier     string             `json:"forced_tier,omitempty"`
	ForcedDecision string             `json:"forced_decision,omitempty"`
}

// EvaluateRules runs the enabled rules in ascending rule code order,
// skipping rules scoped to the other party type. The first HARD hit is
// returned as the kill and evaluation stops there; SOFT hits encountered
// before it accumulate as advisories. A rule whose condition field is
// absent from the request never triggers and is logged.
func EvaluateRules(snap *Snapshot, attrs Attributes, logger *slog.Logger) (*RuleHit, []RuleHit) {
	var advisories []RuleHit
	party := attrs["party_type"].Text

	for _, cr := range snap.Rules {
		if !appliesTo(cr.Rule.PartyType, party) {
			continue
		}
		triggered, missing := cr.Evaluate(attrs)
		if missing != nil {
			logger.Warn("rule condition field absent",
				"rule_code", missing.RuleCode,
				"field", missing.Field,
				"model_version", snap.VersionID)
			continue
		}
		if !triggered {
			continue
		}

		r := cr.Rule
		hit := RuleHit{
			RuleCode:       r.RuleCode,
			RuleName:       r.RuleName,
			Description:    r.Description,
			TriggeredValue: fmt.Sprintf("%s: %s", r.ConditionField, attrs[r.ConditionField].Text),
			Severity:       r.Severity,
		}
		if r.Severity == store.SeverityHard {
			hit.ForcedTier = r.ForcedTier
			hit.ForcedDecision = r.ForcedDecision
			if hit.ForcedTier == "" {
				hit.ForcedTier = "RED"
			}
			if hit.ForcedDecision == "" {
				hit.ForcedDecision = "DECLINE"
			}
			return &hit, advisories
		}
		advisories = append(advisories, hit)
	}

	return nil, advisories
}
