package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

// Validate checks a version's full configuration and returns a
// *ValidationError carrying every violation found, nil when publishable.
func Validate(cfg *store.VersionConfig) error {
	var violations []string
	add := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	binsByFactor := make(map[string][]*store.FactorBin)
	for _, b := range cfg.Bins {
		binsByFactor[b.FactorName] = append(binsByFactor[b.FactorName], b)
	}

	enabled := 0
	for _, f := range cfg.Factors {
		if !f.Enabled {
			continue
		}
		enabled++
		if f.Weight < 0 || f.Weight > 1 {
			add("factor %s: weight %v outside [0, 1]", f.FactorName, f.Weight)
		}
		if !validPartyScope(f.PartyType) {
			add("factor %s: unknown party scope %q", f.FactorName, f.PartyType)
		}

		bins := binsByFactor[f.FactorName]
		if len(bins) == 0 {
			add("factor %s: no bins", f.FactorName)
			continue
		}
		missing := 0
		orders := make(map[int]bool)
		for _, b := range bins {
			if b.IsMissingBin {
				missing++
			}
			if orders[b.BinOrder] {
				add("factor %s: duplicate bin order %d", f.FactorName, b.BinOrder)
			}
			orders[b.BinOrder] = true
			if f.ScoreRangeMin != nil && b.RawScore < *f.ScoreRangeMin {
				add("factor %s: bin %q score %v below declared minimum %v", f.FactorName, b.BinLabel, b.RawScore, *f.ScoreRangeMin)
			}
			if f.ScoreRangeMax != nil && b.RawScore > *f.ScoreRangeMax {
				add("factor %s: bin %q score %v above declared maximum %v", f.FactorName, b.BinLabel, b.RawScore, *f.ScoreRangeMax)
			}
		}
		if missing > 1 {
			add("factor %s: %d missing-value bins, at most one allowed", f.FactorName, missing)
		}
	}
	if enabled == 0 {
		add("no enabled factors")
	}

	validateTiers(cfg.Tiers, add)

	codes := make(map[string]bool)
	for _, r := range cfg.Rules {
		if codes[r.RuleCode] {
			add("rule %s: duplicate code", r.RuleCode)
		}
		codes[r.RuleCode] = true
		if r.Severity != store.SeverityHard && r.Severity != store.SeveritySoft {
			add("rule %s: unknown severity %q", r.RuleCode, r.Severity)
		}
		if !validPartyScope(r.PartyType) {
			add("rule %s: unknown party scope %q", r.RuleCode, r.PartyType)
		}
		if err := scoring.ValidateRule(r); err != nil {
			var cfgErr *scoring.ConfigError
			if errors.As(err, &cfgErr) {
				add("%s", cfgErr.Reason)
			} else {
				add("rule %s: %v", r.RuleCode, err)
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{VersionID: cfg.Version.VersionID, Violations: violations}
}

func validPartyScope(scope string) bool {
	switch scope {
	case "", store.PartyAll, store.PartyB2C, store.PartyB2B:
		return true
	}
	return false
}

func validateTiers(tiers []*store.TierThreshold, add func(string, ...interface{})) {
	if len(tiers) == 0 {
		add("no tiers configured")
		return
	}

	sorted := make([]*store.TierThreshold, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TierOrder < sorted[j].TierOrder })

	catchAll := 0
	orders := make(map[int]bool)
	names := make(map[string]bool)
	var prevMin *float64
	for i, t := range sorted {
		if orders[t.TierOrder] {
			add("tier %s: duplicate tier order %d", t.TierName, t.TierOrder)
		}
		orders[t.TierOrder] = true
		if names[t.TierName] {
			add("tier %s: duplicate name", t.TierName)
		}
		names[t.TierName] = true
		if t.Decision == "" {
			add("tier %s: empty decision", t.TierName)
		}
		if t.EstimatedPD != nil && (*t.EstimatedPD < 0 || *t.EstimatedPD > 1) {
			add("tier %s: estimated PD %v outside [0, 1]", t.TierName, *t.EstimatedPD)
		}

		if t.MinScore == nil {
			catchAll++
			if i != len(sorted)-1 {
				add("tier %s: catch-all must carry the highest tier order", t.TierName)
			}
			continue
		}
		if prevMin != nil && *t.MinScore >= *prevMin {
			add("tier %s: min_score %v not below preceding tier's %v", t.TierName, *t.MinScore, *prevMin)
		}
		prevMin = t.MinScore
	}
	if catchAll == 0 {
		add("missing catch-all tier")
	}
	if catchAll > 1 {
		add("%d catch-all tiers, exactly one allowed", catchAll)
	}
}
