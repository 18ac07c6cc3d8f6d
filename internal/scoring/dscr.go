package scoring

const (
	minimumLivingCostSingle = 1350.0
	livingCostBuffer        = 0.10
)

// DSCRResult is the affordability block attached to every assessment.
// Value is nil when the inputs do not support a meaningful ratio, in which
// case the DSCR factor falls back to its missing-value bin.
type DSCRResult struct {
	Value             *float64 `json:"dscr_value"`
	DisposableIncome  *float64 `json:"monthly_disposable_income"`
	MonthlyPayment    float64  `json:"monthly_payment"`
	CalculationMethod string   `json:"calculation_method"`
	Valid             bool     `json:"is_valid"`
}

// ComputeDSCR derives the debt service coverage ratio. B2C uses monthly net
// income minus living costs over the leasing payment, B2B annual EBITDA over
// total annual debt service. Absent deduction components count as zero and
// are reported as applied defaults.
func ComputeDSCR(req *EvaluationRequest) (DSCRResult, []DefaultApplied) {
	if req.Customer.PartyType == "B2B" {
		return computeDSCRB2B(req), nil
	}
	return computeDSCRB2C(req)
}

func computeDSCRB2C(req *EvaluationRequest) (DSCRResult, []DefaultApplied) {
	c := &req.Customer
	payment := req.Contract.MonthlyPayment

	if c.MonthlyNetIncome == nil || *c.MonthlyNetIncome <= 0 {
		return DSCRResult{MonthlyPayment: payment, CalculationMethod: "FALLBACK"}, nil
	}

	var defaults []DefaultApplied
	component := func(name string, v *float64) float64 {
		if v == nil {
			defaults = append(defaults, DefaultApplied{
				Field:  name,
				Value:  "0",
				Reason: "component not supplied, assumed zero",
			})
			return 0
		}
		return *v
	}

	livingCost := minimumLivingCostSingle * (1 + livingCostBuffer)
	deductions := component("monthly_rent", c.MonthlyRent) +
		component("monthly_insurance", c.MonthlyInsurance) +
		component("monthly_alimony", c.MonthlyAlimony) +
		component("monthly_existing_obligations", c.MonthlyExistingObligations) +
		livingCost
	disposable := *c.MonthlyNetIncome - deductions

	res := DSCRResult{MonthlyPayment: payment, CalculationMethod: "B2C_NET_INCOME"}
	if payment <= 0 {
		res.DisposableIncome = &disposable
		return res, defaults
	}

	value := round2(disposable / payment)
	rounded := round2(disposable)
	res.Value = &value
	res.DisposableIncome = &rounded
	res.Valid = true
	return res, defaults
}

func computeDSCRB2B(req *EvaluationRequest) DSCRResult {
	c := &req.Customer
	payment := req.Contract.MonthlyPayment

	if c.AnnualEBITDA == nil || *c.AnnualEBITDA <= 0 {
		return DSCRResult{MonthlyPayment: payment, CalculationMethod: "FALLBACK"}
	}

	existingService := 0.0
	if c.TotalDebtService != nil {
		existingService = *c.TotalDebtService
	}
	annualService := existingService + payment*12

	res := DSCRResult{MonthlyPayment: payment, CalculationMethod: "B2B_EBITDA"}
	if annualService <= 0 {
		return res
	}

	value := round2(*c.AnnualEBITDA / annualService)
	disposable := round2(*c.AnnualEBITDA/12 - payment)
	res.Value = &value
	res.DisposableIncome = &disposable
	res.Valid = true
	return res
}
