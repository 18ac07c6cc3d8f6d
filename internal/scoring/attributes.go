package scoring

import (
	"strconv"
	"strings"
	"time"
)

// AttrValue is one derived scoring input. Number is set whenever the value
// can take part in range comparisons; Text always carries the canonical
// string used for categorical matching.
type AttrValue struct {
	Number *float64
	Text   string
}

// Attributes maps factor names and rule condition fields to derived values.
// An absent key means the input was missing.
type Attributes map[string]AttrValue

// DefaultApplied records a substitution made during derivation so the
// assessment discloses every assumed value.
type DefaultApplied struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func numAttr(v float64) AttrValue {
	return AttrValue{Number: &v, Text: formatNumber(v)}
}

func textAttr(s string) AttrValue {
	return AttrValue{Text: s}
}

// DeriveAttributes flattens a request into the inputs the model consumes,
// keyed by factor name and by rule condition field. now anchors the age
// computation; dscr contributes the affordability ratio. Substitutions made
// along the way are returned for disclosure on the assessment.
func DeriveAttributes(req *EvaluationRequest, dscr DSCRResult, now time.Time) (Attributes, []DefaultApplied) {
	attrs := make(Attributes)
	var defaults []DefaultApplied
	c := &req.Customer

	attrs["party_type"] = textAttr(c.PartyType)

	if req.Vehicle.VehiclePrice > 0 {
		ltv := req.Contract.FinancedAmount / req.Vehicle.VehiclePrice * 100
		attrs["LTV"] = numAttr(ltv)
		attrs["ltv"] = numAttr(ltv)
		attrs["VehiclePriceTier"] = numAttr(req.Vehicle.VehiclePrice)
		attrs["vehicle_price"] = numAttr(req.Vehicle.VehiclePrice)
	}

	term := float64(req.Contract.TermMonths)
	attrs["Term"] = numAttr(term)
	attrs["term_months"] = numAttr(term)
	attrs["monthly_payment"] = numAttr(req.Contract.MonthlyPayment)
	attrs["financed_amount"] = numAttr(req.Contract.FinancedAmount)

	if dob, err := time.Parse("2006-01-02", c.DateOfBirth); err == nil {
		age := float64(completedYears(dob, now))
		attrs["Age"] = numAttr(age)
		attrs["age"] = numAttr(age)
	}

	if c.CRIFScore != nil {
		attrs["CRIF"] = numAttr(float64(*c.CRIFScore))
		attrs["crif_score"] = numAttr(float64(*c.CRIFScore))
	}

	if c.IntrumScore != nil {
		attrs["Intrum"] = numAttr(float64(*c.IntrumScore))
		attrs["intrum_score"] = numAttr(float64(*c.IntrumScore))
	} else {
		attrs["Intrum"] = numAttr(0)
		defaults = append(defaults, DefaultApplied{
			Field:  "intrum_score",
			Value:  "0",
			Reason: "no Intrum score supplied, treated as no data",
		})
	}

	if dscr.Value != nil {
		attrs["dscr_value"] = numAttr(*dscr.Value)
		if dscr.Valid {
			attrs["DSCR"] = numAttr(*dscr.Value)
		}
	}

	attrs["Permit"] = textAttr(permitClass(c))

	if c.ZEKHasEntries != nil {
		switch {
		case !*c.ZEKHasEntries:
			attrs["ZEK"] = textAttr("clean")
		case c.ZEKEntryCount == nil || *c.ZEKEntryCount <= 1:
			attrs["ZEK"] = textAttr("1")
		default:
			attrs["ZEK"] = textAttr("2+")
		}
	}
	if c.ZEKEntryCount != nil {
		attrs["zek_entry_count"] = numAttr(float64(*c.ZEKEntryCount))
	}

	if c.MonthlyNetIncome != nil {
		attrs["monthly_net_income"] = numAttr(*c.MonthlyNetIncome)
	} else if c.PartyType == "B2C" {
		attrs["monthly_net_income"] = numAttr(0)
		defaults = append(defaults, DefaultApplied{
			Field:  "monthly_net_income",
			Value:  "0",
			Reason: "B2C application without net income, treated as zero",
		})
	}

	d := &req.Dealer
	if d.DefaultRate != nil {
		attrs["dealer_default_rate"] = numAttr(*d.DefaultRate)
		if d.ActiveMonths != nil && *d.ActiveMonths >= 6 {
			attrs["DealerRisk"] = numAttr(*d.DefaultRate)
		}
	}
	if d.ActiveMonths != nil {
		attrs["dealer_active_months"] = numAttr(float64(*d.ActiveMonths))
	}

	setNum := func(key string, v *float64) {
		if v != nil {
			attrs[key] = numAttr(*v)
		}
	}
	setText := func(key, v string) {
		if v != "" {
			attrs[key] = textAttr(v)
		}
	}
	setNum("monthly_gross_income", c.MonthlyGrossIncome)
	setNum("annual_revenue", c.AnnualRevenue)
	setNum("annual_ebitda", c.AnnualEBITDA)
	setNum("total_debt_service", c.TotalDebtService)
	setNum("company_age_years", c.CompanyAgeYears)
	setNum("residence_years", c.ResidenceYears)
	setText("legal_form", c.LegalForm)
	setText("zefix_status", c.ZefixStatus)
	setText("industry_risk", c.IndustryRisk)
	setText("income_type", c.IncomeType)
	setText("nationality", c.Nationality)
	if req.Vehicle.VehicleAgeMonths != nil {
		attrs["vehicle_age_months"] = numAttr(float64(*req.Vehicle.VehicleAgeMonths))
	}

	if c.PartyType == "B2B" {
		if c.CompanyAgeYears != nil {
			attrs["CompanyAge"] = numAttr(*c.CompanyAgeYears)
		}
		if c.TotalDebtService != nil && c.AnnualRevenue != nil && *c.AnnualRevenue > 0 {
			ratio := *c.TotalDebtService / *c.AnnualRevenue
			attrs["DebtRatio"] = numAttr(ratio)
			attrs["debt_ratio"] = numAttr(ratio)
		}
		attrs["CompanyType"] = textAttr(companyClass(c))
		if c.IndustryRisk != "" {
			attrs["IndustryRisk"] = textAttr(c.IndustryRisk)
		}
		if dscr.Valid && dscr.Value != nil {
			attrs["DSCRB2B"] = numAttr(*dscr.Value)
		}
		if c.AnnualEBITDA == nil {
			attrs["annual_ebitda"] = numAttr(0)
			defaults = append(defaults, DefaultApplied{
				Field:  "annual_ebitda",
				Value:  "0",
				Reason: "B2B application without EBITDA, treated as zero",
			})
		}
	}

	return attrs, defaults
}

// companyClass folds Zefix register status and legal form into the single
// categorical value the CompanyType factor bins on. A problematic register
// status dominates the legal form.
func companyClass(c *Customer) string {
	switch status := strings.ToUpper(c.ZefixStatus); status {
	case "DISSOLVED", "SUSPENDED", "NOT_FOUND":
		return status
	}
	form := strings.ToUpper(c.LegalForm)
	if form == "" {
		return "UNKNOWN"
	}
	return form
}

// permitClass folds party type and residence permit into the single
// categorical value the Permit factor bins on. Diplomats score as L permits;
// anything unrecognised falls to the factor's catch-all bin.
func permitClass(c *Customer) string {
	if c.PartyType == "B2B" {
		return "B2B"
	}
	permit := "Unknown"
	if c.PermitType != nil {
		permit = *c.PermitType
	}
	p := strings.ToUpper(permit)
	if p == "DIPLOMAT" {
		p = "L"
	}
	return p
}

// completedYears counts whole years between birth and now. Bins carry
// integer bounds, so a fractional age would slip between adjacent bins.
func completedYears(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if dob.AddDate(years, 0, 0).After(now) {
		years--
	}
	return years
}
