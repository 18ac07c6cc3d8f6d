package scoring

import (
	"fmt"
	"time"
)

// Customer carries the applicant block of an evaluation request. B2C
// applicants populate the income and permit fields, B2B applicants the
// company fields; bureau scores apply to both.
type Customer struct {
	CustomerID  string  `json:"customer_id"`
	DateOfBirth string  `json:"date_of_birth"`
	PartyType   string  `json:"party_type"`
	PermitType  *string `json:"permit_type,omitempty"`
	Nationality string  `json:"nationality,omitempty"`
	IncomeType  string  `json:"income_type,omitempty"`

	MonthlyGrossIncome         *float64 `json:"monthly_gross_income,omitempty"`
	MonthlyNetIncome           *float64 `json:"monthly_net_income,omitempty"`
	MonthlyExistingObligations *float64 `json:"monthly_existing_obligations,omitempty"`
	MonthlyRent                *float64 `json:"monthly_rent,omitempty"`
	MonthlyInsurance           *float64 `json:"monthly_insurance,omitempty"`
	MonthlyAlimony             *float64 `json:"monthly_alimony,omitempty"`
	ResidenceYears             *float64 `json:"residence_years,omitempty"`

	AnnualRevenue    *float64 `json:"annual_revenue,omitempty"`
	AnnualEBITDA     *float64 `json:"annual_ebitda,omitempty"`
	TotalDebtService *float64 `json:"total_debt_service,omitempty"`
	CompanyAgeYears  *float64 `json:"company_age_years,omitempty"`
	LegalForm        string   `json:"legal_form,omitempty"`
	ZefixStatus      string   `json:"zefix_status,omitempty"`
	IndustryRisk     string   `json:"industry_risk,omitempty"`

	CRIFScore     *int  `json:"crif_score,omitempty"`
	IntrumScore   *int  `json:"intrum_score,omitempty"`
	ZEKHasEntries *bool `json:"zek_has_entries,omitempty"`
	ZEKEntryCount *int  `json:"zek_entry_count,omitempty"`
}

// Vehicle describes the financed object.
type Vehicle struct {
	VehiclePrice     float64 `json:"vehicle_price"`
	VehicleType      string  `json:"vehicle_type,omitempty"`
	VehicleAgeMonths *int    `json:"vehicle_age_months,omitempty"`
	IsElectric       *bool   `json:"is_electric,omitempty"`
	EurotaxCode      string  `json:"eurotax_code,omitempty"`
}

// Contract describes the leasing terms being applied for.
type Contract struct {
	ContractID        string   `json:"contract_id"`
	FinancedAmount    float64  `json:"financed_amount"`
	DownpaymentAmount float64  `json:"downpayment_amount"`
	ResidualValue     *float64 `json:"residual_value,omitempty"`
	TermMonths        int      `json:"term_months"`
	MonthlyPayment    float64  `json:"monthly_payment"`
	InterestRate      *float64 `json:"interest_rate,omitempty"`
	ProductType       string   `json:"product_type,omitempty"`
}

// Dealer identifies the originating dealer. DefaultRate is usually absent
// on the wire and enriched from the latest dealer metrics snapshot.
type Dealer struct {
	DealerID     string   `json:"dealer_id"`
	DealerName   string   `json:"dealer_name,omitempty"`
	DefaultRate  *float64 `json:"dealer_default_rate,omitempty"`
	ActiveMonths *int     `json:"dealer_active_months,omitempty"`
	VolumeTier   string   `json:"dealer_volume_tier,omitempty"`
}

// EvaluationRequest is one scoring request. RequestID is the caller's
// idempotency key; ModelVersion pins a specific calibration and defaults
// to the published one when empty.
type EvaluationRequest struct {
	RequestID    string   `json:"request_id"`
	Timestamp    string   `json:"timestamp"`
	Customer     Customer `json:"customer"`
	Vehicle      Vehicle  `json:"vehicle"`
	Contract     Contract `json:"contract"`
	Dealer       Dealer   `json:"dealer"`
	ModelVersion string   `json:"model_version,omitempty"`
}

var permitTypes = map[string]bool{
	"B": true, "C": true, "L": true, "Diplomat": true, "Unknown": true,
}

// Validate checks field presence, ranges and formats and returns every
// violation found, empty when the request is acceptable.
func (r *EvaluationRequest) Validate() []string {
	var violations []string
	add := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if r.RequestID == "" {
		add("request_id is required")
	}
	if r.Timestamp == "" {
		add("timestamp is required")
	} else if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
		add("timestamp must be an ISO-8601 datetime")
	}

	c := &r.Customer
	if c.CustomerID == "" {
		add("customer.customer_id is required")
	}
	if c.DateOfBirth == "" {
		add("customer.date_of_birth is required")
	} else if _, err := time.Parse("2006-01-02", c.DateOfBirth); err != nil {
		add("customer.date_of_birth must be a YYYY-MM-DD date")
	}
	switch c.PartyType {
	case "B2B", "B2C":
	default:
		add("customer.party_type must be B2B or B2C")
	}
	if c.PermitType != nil && !permitTypes[*c.PermitType] {
		add("customer.permit_type must be one of B, C, L, Diplomat, Unknown")
	}

	nonNegative := []struct {
		name  string
		value *float64
	}{
		{"customer.monthly_gross_income", c.MonthlyGrossIncome},
		{"customer.monthly_net_income", c.MonthlyNetIncome},
		{"customer.monthly_existing_obligations", c.MonthlyExistingObligations},
		{"customer.monthly_rent", c.MonthlyRent},
		{"customer.monthly_insurance", c.MonthlyInsurance},
		{"customer.monthly_alimony", c.MonthlyAlimony},
		{"customer.residence_years", c.ResidenceYears},
		{"customer.annual_revenue", c.AnnualRevenue},
		{"customer.annual_ebitda", c.AnnualEBITDA},
		{"customer.total_debt_service", c.TotalDebtService},
		{"customer.company_age_years", c.CompanyAgeYears},
	}
	for _, f := range nonNegative {
		if f.value != nil && *f.value < 0 {
			add("%s must not be negative", f.name)
		}
	}
	if c.CRIFScore != nil && (*c.CRIFScore < 0 || *c.CRIFScore > 1000) {
		add("customer.crif_score must be between 0 and 1000")
	}
	if c.IntrumScore != nil && (*c.IntrumScore < 0 || *c.IntrumScore > 10) {
		add("customer.intrum_score must be between 0 and 10")
	}
	if c.ZEKEntryCount != nil && *c.ZEKEntryCount < 0 {
		add("customer.zek_entry_count must not be negative")
	}

	if r.Vehicle.VehiclePrice <= 0 {
		add("vehicle.vehicle_price must be positive")
	}
	if r.Vehicle.VehicleAgeMonths != nil && *r.Vehicle.VehicleAgeMonths < 0 {
		add("vehicle.vehicle_age_months must not be negative")
	}

	ct := &r.Contract
	if ct.ContractID == "" {
		add("contract.contract_id is required")
	}
	if ct.FinancedAmount <= 0 {
		add("contract.financed_amount must be positive")
	}
	if ct.DownpaymentAmount < 0 {
		add("contract.downpayment_amount must not be negative")
	}
	if ct.ResidualValue != nil && *ct.ResidualValue < 0 {
		add("contract.residual_value must not be negative")
	}
	if ct.TermMonths <= 0 || ct.TermMonths > 84 {
		add("contract.term_months must be between 1 and 84")
	}
	if ct.MonthlyPayment <= 0 {
		add("contract.monthly_payment must be positive")
	}
	if ct.InterestRate != nil && *ct.InterestRate < 0 {
		add("contract.interest_rate must not be negative")
	}

	d := &r.Dealer
	if d.DealerID == "" {
		add("dealer.dealer_id is required")
	}
	if d.DefaultRate != nil && (*d.DefaultRate < 0 || *d.DefaultRate > 1) {
		add("dealer.dealer_default_rate must be between 0 and 1")
	}
	if d.ActiveMonths != nil && *d.ActiveMonths < 0 {
		add("dealer.dealer_active_months must not be negative")
	}

	return violations
}
