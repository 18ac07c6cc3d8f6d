package scoring

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/LimmatCapital/Verdict/internal/store"
)

// VersionResolver yields immutable scoring snapshots. An empty version id
// resolves to the currently published calibration.
type VersionResolver interface {
	Resolve(ctx context.Context, versionID string) (*Snapshot, error)
}

// Factor pairs one factor's configuration with its bins in bin order.
type Factor struct {
	Config *store.FactorConfig
	Bins   []*store.FactorBin
}

// Snapshot is a compiled, read-only view of one model version: enabled
// factors in display order, tiers in ascending tier order, enabled rules in
// rule code order with their conditions parsed. Evaluations never touch the
// database once they hold a snapshot.
type Snapshot struct {
	VersionID string
	Status    store.VersionStatus
	Factors   []*Factor
	Tiers     []*store.TierThreshold
	Rules     []*CompiledRule

	byName map[string]*Factor
	byTier map[string]*store.TierThreshold
}

// NewSnapshot compiles a stored version configuration. Unknown rule
// operators and unparseable numeric literals are rejected here so a broken
// calibration fails at load time, not mid-evaluation.
func NewSnapshot(cfg *store.VersionConfig) (*Snapshot, error) {
	snap := &Snapshot{
		VersionID: cfg.Version.VersionID,
		Status:    cfg.Version.Status,
		byName:    make(map[string]*Factor),
		byTier:    make(map[string]*store.TierThreshold),
	}

	binsByFactor := make(map[string][]*store.FactorBin)
	for _, b := range cfg.Bins {
		binsByFactor[b.FactorName] = append(binsByFactor[b.FactorName], b)
	}
	for _, fc := range cfg.Factors {
		if !fc.Enabled {
			continue
		}
		f := &Factor{Config: fc, Bins: binsByFactor[fc.FactorName]}
		sort.Slice(f.Bins, func(i, j int) bool { return f.Bins[i].BinOrder < f.Bins[j].BinOrder })
		snap.Factors = append(snap.Factors, f)
		snap.byName[fc.FactorName] = f
	}
	sort.Slice(snap.Factors, func(i, j int) bool {
		return snap.Factors[i].Config.DisplayOrder < snap.Factors[j].Config.DisplayOrder
	})

	snap.Tiers = append(snap.Tiers, cfg.Tiers...)
	sort.Slice(snap.Tiers, func(i, j int) bool { return snap.Tiers[i].TierOrder < snap.Tiers[j].TierOrder })
	for _, t := range snap.Tiers {
		snap.byTier[t.TierName] = t
	}

	for _, r := range cfg.Rules {
		if !r.Enabled {
			continue
		}
		cr, err := compileRule(cfg.Version.VersionID, r)
		if err != nil {
			return nil, err
		}
		snap.Rules = append(snap.Rules, cr)
	}
	sort.Slice(snap.Rules, func(i, j int) bool { return snap.Rules[i].Rule.RuleCode < snap.Rules[j].Rule.RuleCode })

	return snap, nil
}

// Factor returns the named enabled factor, nil when absent.
func (s *Snapshot) Factor(name string) *Factor {
	return s.byName[name]
}

// Tier returns the named tier threshold, nil when absent.
func (s *Snapshot) Tier(name string) *store.TierThreshold {
	return s.byTier[name]
}

// ValidateRule checks a rule's operator and literal without building a full
// snapshot. Calibration uses it to vet drafts, disabled rules included.
func ValidateRule(r *store.BusinessRule) error {
	_, err := compileRule(r.VersionID, r)
	return err
}

type ruleOp int

const (
	opLT ruleOp = iota
	opGT
	opLE
	opGE
	opEQ
	opNE
	opIN
)

// CompiledRule is a business rule with its condition parsed once. Ordered
// operators compare numerically; equality falls back to the canonical
// string when the literal is not a number; IN matches against a comma
// separated list.
type CompiledRule struct {
	Rule *store.BusinessRule

	op      ruleOp
	numeric bool
	number  float64
	text    string
	set     []string
}

func compileRule(versionID string, r *store.BusinessRule) (*CompiledRule, error) {
	cr := &CompiledRule{Rule: r}

	switch r.ConditionOperator {
	case "<":
		cr.op = opLT
	case ">":
		cr.op = opGT
	case "<=":
		cr.op = opLE
	case ">=":
		cr.op = opGE
	case "==":
		cr.op = opEQ
	case "!=":
		cr.op = opNE
	case "IN":
		cr.op = opIN
	default:
		return nil, &ConfigError{
			VersionID: versionID,
			Reason:    "rule " + r.RuleCode + ": unknown operator " + strconv.Quote(r.ConditionOperator),
		}
	}

	switch cr.op {
	case opIN:
		for _, v := range strings.Split(r.ConditionValue, ",") {
			if v = strings.TrimSpace(v); v != "" {
				cr.set = append(cr.set, v)
			}
		}
		if len(cr.set) == 0 {
			return nil, &ConfigError{
				VersionID: versionID,
				Reason:    "rule " + r.RuleCode + ": empty IN list",
			}
		}
	case opEQ, opNE:
		if n, err := strconv.ParseFloat(r.ConditionValue, 64); err == nil {
			cr.numeric = true
			cr.number = n
		} else {
			cr.text = r.ConditionValue
		}
	default:
		n, err := strconv.ParseFloat(r.ConditionValue, 64)
		if err != nil {
			return nil, &ConfigError{
				VersionID: versionID,
				Reason:    "rule " + r.RuleCode + ": non-numeric literal " + strconv.Quote(r.ConditionValue) + " for operator " + r.ConditionOperator,
			}
		}
		cr.numeric = true
		cr.number = n
	}

	return cr, nil
}

// Evaluate applies the compiled condition to the derived attributes. An
// absent field, or a non-numeric value under an ordered operator, returns a
// MissingFieldError and never triggers.
func (cr *CompiledRule) Evaluate(attrs Attributes) (bool, *MissingFieldError) {
	v, ok := attrs[cr.Rule.ConditionField]
	if !ok {
		return false, &MissingFieldError{RuleCode: cr.Rule.RuleCode, Field: cr.Rule.ConditionField}
	}

	switch cr.op {
	case opIN:
		for _, candidate := range cr.set {
			if v.Text == candidate {
				return true, nil
			}
		}
		return false, nil
	case opEQ, opNE:
		var equal bool
		if cr.numeric {
			if v.Number == nil {
				return false, &MissingFieldError{RuleCode: cr.Rule.RuleCode, Field: cr.Rule.ConditionField}
			}
			equal = *v.Number == cr.number
		} else {
			equal = v.Text == cr.text
		}
		if cr.op == opNE {
			return !equal, nil
		}
		return equal, nil
	}

	if v.Number == nil {
		return false, &MissingFieldError{RuleCode: cr.Rule.RuleCode, Field: cr.Rule.ConditionField}
	}
	n := *v.Number
	switch cr.op {
	case opLT:
		return n < cr.number, nil
	case opGT:
		return n > cr.number, nil
	case opLE:
		return n <= cr.number, nil
	default:
		return n >= cr.number, nil
	}
}
