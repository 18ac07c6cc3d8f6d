package scoring

import (
	"math"

	"github.com/LimmatCapital/Verdict/internal/store"
)

// FactorScore is one row of the per-factor breakdown on an assessment.
// WeightedScore always equals RawScore: the composite is an unweighted sum
// and the weight rides along for reporting only.
type FactorScore struct {
	FactorName    string  `json:"factor_name"`
	RawValue      string  `json:"raw_value"`
	BinLabel      string  `json:"bin_label"`
	Weight        float64 `json:"weight"`
	RawScore      float64 `json:"raw_score"`
	WeightedScore float64 `json:"weighted_score"`
}

// ScoreFactors bins every enabled factor that applies to the request's
// party type, in display order, and sums the raw bin scores. The total is
// rounded to two decimals.
func ScoreFactors(snap *Snapshot, attrs Attributes) ([]FactorScore, float64, error) {
	scores := make([]FactorScore, 0, len(snap.Factors))
	total := 0.0
	party := attrs["party_type"].Text

	for _, f := range snap.Factors {
		if !appliesTo(f.Config.PartyType, party) {
			continue
		}
		v, ok := attrs[f.Config.FactorName]
		bin, err := SelectBin(snap.VersionID, f, v, ok)
		if err != nil {
			return nil, 0, err
		}

		rawValue := "N/A"
		if ok {
			rawValue = v.Text
		}
		scores = append(scores, FactorScore{
			FactorName:    f.Config.FactorName,
			RawValue:      rawValue,
			BinLabel:      bin.BinLabel,
			Weight:        f.Config.Weight,
			RawScore:      bin.RawScore,
			WeightedScore: bin.RawScore,
		})
		total += bin.RawScore
	}

	return scores, round2(total), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// appliesTo reports whether a factor or rule scoped to scope participates
// for the given party type. An empty scope reads as ALL.
func appliesTo(scope, party string) bool {
	return scope == "" || scope == store.PartyAll || scope == party
}
