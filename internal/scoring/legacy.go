package scoring

import (
	"math"
	"time"
)

const legacyIntercept = 389.0

// ComputeLegacyScore reproduces the retired six-factor points scorecard for
// B2C applicants. It rides on every assessment during the parallel-run
// period so analysts can compare old and new decisions; B2B applicants were
// never covered by it and get no legacy score.
func ComputeLegacyScore(req *EvaluationRequest, dscr DSCRResult, now time.Time) (*int, *string) {
	c := &req.Customer
	if c.PartyType == "B2B" {
		return nil, nil
	}

	score := legacyIntercept

	ltv := 100.0
	if req.Vehicle.VehiclePrice > 0 {
		ltv = req.Contract.FinancedAmount / req.Vehicle.VehiclePrice * 100
	}
	switch {
	case ltv >= 75 && ltv <= 85:
		score += 15
	case ltv > 85 && ltv <= 95:
		score += 7
	case ltv < 75:
		score += 36
	default:
		score -= 18
	}

	switch term := req.Contract.TermMonths; {
	case term >= 37 && term <= 48:
		score += 25
	case term > 48:
		score -= 7
	default:
		score += 22
	}

	if dob, err := time.Parse("2006-01-02", c.DateOfBirth); err == nil {
		age := now.Sub(dob).Hours() / 24 / 365.25
		switch {
		case age >= 18 && age <= 25:
			score -= 16
		case age >= 26 && age <= 35:
			score += 6
		case age >= 36 && age <= 45:
			score -= 3
		case age >= 46 && age <= 55:
			score += 28
		case age >= 56:
			score -= 8
		}
	}

	switch {
	case c.IntrumScore == nil || *c.IntrumScore == 0:
		score -= 7
	case *c.IntrumScore == 1:
		score += 1
	case *c.IntrumScore <= 3:
		score -= 3
	default:
		score += 8
	}

	permit := ""
	if c.PermitType != nil {
		permit = *c.PermitType
	}
	switch permit {
	case "B":
		score -= 5
	case "C":
		score += 6
	default:
		score += 7
	}

	if dscr.Value != nil {
		switch d := *dscr.Value; {
		case d >= 0 && d <= 3:
			score -= 1
		case d > 3 && d <= 7:
			// no adjustment
		case d > 7 && d <= 15:
			score -= 3
		case d < 0:
			score -= 6
		default:
			score += 9
		}
	}

	rounded := int(math.Round(score))
	band := legacyBand(score)
	return &rounded, &band
}

func legacyBand(score float64) string {
	switch {
	case score > 428:
		return "A"
	case score >= 401:
		return "B"
	case score >= 381:
		return "C"
	case score >= 361:
		return "D"
	default:
		return "E"
	}
}
