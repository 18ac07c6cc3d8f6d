package scoring

import (
	"fmt"

	"github.com/LimmatCapital/Verdict/internal/store"
)

// ClassifyTier walks the tiers in ascending tier order and returns the
// first whose MinScore the total meets. A nil MinScore matches any total,
// so a well-formed tier table always classifies.
func ClassifyTier(snap *Snapshot, total float64) (*store.TierThreshold, error) {
	for _, t := range snap.Tiers {
		if t.MinScore == nil || total >= *t.MinScore {
			return t, nil
		}
	}
	return nil, &ConfigError{
		VersionID: snap.VersionID,
		Reason:    fmt.Sprintf("no tier matches total score %.2f, catch-all tier missing", total),
	}
}
