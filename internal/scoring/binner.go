package scoring

import "github.com/LimmatCapital/Verdict/internal/store"

// SelectBin picks the scoring bin for one factor. A missing input routes to
// the factor's missing-value bin; a present input is tested against the
// remaining bins in bin order and takes the first match. A present value
// never falls back to the missing bin.
func SelectBin(versionID string, f *Factor, v AttrValue, present bool) (*store.FactorBin, error) {
	if !present {
		for _, b := range f.Bins {
			if b.IsMissingBin {
				return b, nil
			}
		}
		return nil, &ConfigError{
			VersionID:  versionID,
			FactorName: f.Config.FactorName,
			Reason:     "input missing and no missing-value bin configured",
		}
	}

	for _, b := range f.Bins {
		if b.IsMissingBin {
			continue
		}
		if b.MatchValue != nil {
			if v.Text == *b.MatchValue {
				return b, nil
			}
			continue
		}
		if b.LowerBound == nil && b.UpperBound == nil {
			return b, nil
		}
		if v.Number == nil {
			continue
		}
		if boundsMatch(b, *v.Number) {
			return b, nil
		}
	}

	return nil, &UnmatchedValueError{FactorName: f.Config.FactorName, Value: v.Text}
}

func boundsMatch(b *store.FactorBin, x float64) bool {
	if b.LowerBound != nil {
		if b.LowerInclusive {
			if x < *b.LowerBound {
				return false
			}
		} else if x <= *b.LowerBound {
			return false
		}
	}
	if b.UpperBound != nil {
		if b.UpperInclusive {
			if x > *b.UpperBound {
				return false
			}
		} else if x >= *b.UpperBound {
			return false
		}
	}
	return true
}
