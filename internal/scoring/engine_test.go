package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/LimmatCapital/Verdict/internal/store"
)

func TestEvaluateComposite(t *testing.T) {
	eng := newTestEngine(t, demoConfig())

	res, err := eng.Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if math.Abs(res.TotalScore-14) > 1e-9 {
		t.Errorf("expected total 14, got %v", res.TotalScore)
	}
	if res.Tier != "GREEN" || res.Decision != "APPROVE_STANDARD" {
		t.Errorf("expected GREEN/APPROVE_STANDARD, got %s/%s", res.Tier, res.Decision)
	}
	if res.ProbabilityOfDefault == nil || math.Abs(*res.ProbabilityOfDefault-0.035) > 1e-9 {
		t.Errorf("expected PD 0.035, got %v", res.ProbabilityOfDefault)
	}
	if len(res.FactorScores) != 2 {
		t.Fatalf("expected 2 factor scores, got %d", len(res.FactorScores))
	}
	if res.FactorScores[0].FactorName != "LTV" || res.FactorScores[0].RawScore != 8 {
		t.Errorf("unexpected first factor row: %+v", res.FactorScores[0])
	}
	if res.FactorScores[0].RawValue != "70" {
		t.Errorf("expected raw value 70, got %q", res.FactorScores[0].RawValue)
	}
	if res.FactorScores[1].WeightedScore != res.FactorScores[1].RawScore {
		t.Errorf("weighted score must equal raw score, got %+v", res.FactorScores[1])
	}
	if len(res.TriggeredRules) != 0 {
		t.Errorf("expected no triggered rules, got %+v", res.TriggeredRules)
	}
	if res.ModelVersion != "1.2.0" {
		t.Errorf("expected model version 1.2.0, got %s", res.ModelVersion)
	}
	if res.LegacyScore == nil || res.LegacyBand == nil {
		t.Error("expected legacy score and band for B2C applicant")
	}
	if !hasDefault(res.DefaultsApplied, "intrum_score") {
		t.Errorf("expected intrum_score default disclosure, got %+v", res.DefaultsApplied)
	}
}

func TestEvaluateHardKill(t *testing.T) {
	eng := newTestEngine(t, demoConfig())

	req := baseRequest()
	req.Customer.DateOfBirth = "2010-01-01"

	res, err := eng.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if res.Tier != "RED" || res.Decision != "DECLINE" {
		t.Errorf("expected RED/DECLINE, got %s/%s", res.Tier, res.Decision)
	}
	if res.TotalScore != 0 {
		t.Errorf("expected zero total on hard kill, got %v", res.TotalScore)
	}
	if len(res.FactorScores) != 0 {
		t.Errorf("expected empty factor breakdown, got %+v", res.FactorScores)
	}
	if len(res.TriggeredRules) != 1 || res.TriggeredRules[0].RuleCode != "BR-01" {
		t.Fatalf("expected BR-01 hit, got %+v", res.TriggeredRules)
	}
	if res.TriggeredRules[0].TriggeredValue != "age: 16" {
		t.Errorf("unexpected triggered value: %q", res.TriggeredRules[0].TriggeredValue)
	}
	if res.ProbabilityOfDefault == nil || math.Abs(*res.ProbabilityOfDefault-0.15) > 1e-9 {
		t.Errorf("expected PD from forced tier, got %v", res.ProbabilityOfDefault)
	}
	if res.LegacyScore == nil {
		t.Error("legacy scorecard should still run on hard kill")
	}
}

func TestEvaluateMissingFactorInput(t *testing.T) {
	cfg := demoConfig()
	cfg.Factors = append(cfg.Factors, &store.FactorConfig{
		VersionID: "1.2.0", FactorName: "CRIF", Weight: 0.15, Enabled: true, DisplayOrder: 3,
	})
	cfg.Bins = append(cfg.Bins,
		&store.FactorBin{FactorName: "CRIF", BinOrder: 1, BinLabel: "≥700", LowerBound: float64Ptr(700), LowerInclusive: true, RawScore: 8},
		&store.FactorBin{FactorName: "CRIF", BinOrder: 2, BinLabel: "<700", UpperBound: float64Ptr(700), RawScore: -2},
		&store.FactorBin{FactorName: "CRIF", BinOrder: 3, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
	)
	eng := newTestEngine(t, cfg)

	res, err := eng.Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if math.Abs(res.TotalScore-9) > 1e-9 {
		t.Errorf("expected total 9 with missing CRIF, got %v", res.TotalScore)
	}
	if res.Tier != "YELLOW" {
		t.Errorf("expected YELLOW, got %s", res.Tier)
	}
	row := res.FactorScores[2]
	if row.FactorName != "CRIF" || row.BinLabel != "MISSING" || row.RawScore != -5 || row.RawValue != "N/A" {
		t.Errorf("unexpected CRIF row: %+v", row)
	}
}

func TestEvaluateWeightsDoNotAffectTotal(t *testing.T) {
	reweighted := demoConfig()
	for _, f := range reweighted.Factors {
		f.Weight = 0.9
	}

	base, err := newTestEngine(t, demoConfig()).Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	heavy, err := newTestEngine(t, reweighted).Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if base.TotalScore != heavy.TotalScore {
		t.Errorf("weights changed the total: %v vs %v", base.TotalScore, heavy.TotalScore)
	}
	if base.Tier != heavy.Tier {
		t.Errorf("weights changed the tier: %s vs %s", base.Tier, heavy.Tier)
	}
	if heavy.FactorScores[0].Weight != 0.9 {
		t.Errorf("weight should still be reported, got %v", heavy.FactorScores[0].Weight)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := newTestEngine(t, demoConfig())

	first, err := eng.Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	second, err := eng.Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if first.TotalScore != second.TotalScore || first.Tier != second.Tier || first.Decision != second.Decision {
		t.Errorf("same request produced different outcomes: %v/%s vs %v/%s",
			first.TotalScore, first.Tier, second.TotalScore, second.Tier)
	}
	if first.AssessmentID == second.AssessmentID {
		t.Error("each evaluation must get its own assessment id")
	}
}

func TestEvaluateVersionPinning(t *testing.T) {
	snap := newTestSnapshot(t, demoConfig())
	resolver := &recordingResolver{snap: snap}
	eng := NewEngine(resolver, discardLogger())
	eng.now = fixedNow

	req := baseRequest()
	req.ModelVersion = "1.1.0"
	if _, err := eng.Evaluate(context.Background(), req); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if resolver.got != "1.1.0" {
		t.Errorf("expected pinned version 1.1.0 passed to resolver, got %q", resolver.got)
	}

	req.ModelVersion = ""
	if _, err := eng.Evaluate(context.Background(), req); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if resolver.got != "" {
		t.Errorf("expected empty version id for published default, got %q", resolver.got)
	}
}

func TestEvaluateResolverError(t *testing.T) {
	eng := NewEngine(errResolver{}, discardLogger())
	eng.now = fixedNow

	if _, err := eng.Evaluate(context.Background(), baseRequest()); err == nil {
		t.Fatal("expected resolver error to propagate")
	}
}

func TestEvaluateUnmatchedValue(t *testing.T) {
	cfg := demoConfig()
	cfg.Bins = binsFor(cfg.Bins, "LTV")
	cfg.Bins = append(cfg.Bins, &store.FactorBin{
		FactorName: "Term", BinOrder: 1, BinLabel: "37-48m",
		LowerBound: float64Ptr(37), LowerInclusive: true,
		UpperBound: float64Ptr(48), UpperInclusive: true,
		RawScore:   6,
	})
	eng := newTestEngine(t, cfg)

	req := baseRequest()
	req.Contract.TermMonths = 20

	_, err := eng.Evaluate(context.Background(), req)
	var unmatched *UnmatchedValueError
	if !errors.As(err, &unmatched) {
		t.Fatalf("expected UnmatchedValueError, got %v", err)
	}
	if unmatched.FactorName != "Term" {
		t.Errorf("expected Term factor in error, got %s", unmatched.FactorName)
	}
}

func TestEvaluateB2BFactorSet(t *testing.T) {
	eng := newTestEngine(t, b2bConfig())

	res, err := eng.Evaluate(context.Background(), b2bRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if math.Abs(res.TotalScore-21) > 1e-9 {
		t.Errorf("expected total 21, got %v", res.TotalScore)
	}
	if res.Tier != "GREEN" || res.Decision != "APPROVE_STANDARD" {
		t.Errorf("expected GREEN/APPROVE_STANDARD, got %s/%s", res.Tier, res.Decision)
	}
	if len(res.FactorScores) != 4 {
		t.Fatalf("expected 4 factor rows, got %+v", res.FactorScores)
	}
	for _, row := range res.FactorScores {
		if row.FactorName == "DSCR" {
			t.Errorf("consumer coverage factor must not score a company: %+v", row)
		}
	}
	cov := res.FactorScores[2]
	if cov.FactorName != "DSCRB2B" || cov.BinLabel != "≥2.0 (Strong)" || cov.RawScore != 7 {
		t.Errorf("unexpected coverage row: %+v", cov)
	}
	age := res.FactorScores[3]
	if age.FactorName != "CompanyAge" || age.RawScore != 0 {
		t.Errorf("unexpected company age row: %+v", age)
	}
}

func TestEvaluateB2BCoverageScale(t *testing.T) {
	eng := newTestEngine(t, b2bConfig())

	// 107100 / (60000 + 950*12) = exactly 1.5x coverage, a healthy company
	// on the EBITDA scale.
	req := b2bRequest()
	req.Customer.AnnualEBITDA = float64Ptr(107100)

	res, err := eng.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	cov := res.FactorScores[2]
	if cov.FactorName != "DSCRB2B" {
		t.Fatalf("expected DSCRB2B row, got %+v", cov)
	}
	if cov.BinLabel != "1.5-2.0 (Good)" || cov.RawScore != 5 {
		t.Errorf("coverage 1.5 must land in the good bin, got %+v", cov)
	}
}

func TestEvaluateB2BDissolvedCompany(t *testing.T) {
	eng := newTestEngine(t, b2bConfig())

	req := b2bRequest()
	req.Customer.ZefixStatus = "DISSOLVED"

	res, err := eng.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if res.Tier != "RED" || res.Decision != "DECLINE" {
		t.Errorf("expected RED/DECLINE, got %s/%s", res.Tier, res.Decision)
	}
	if len(res.TriggeredRules) != 1 || res.TriggeredRules[0].RuleCode != "BR-B01" {
		t.Fatalf("expected BR-B01 hit, got %+v", res.TriggeredRules)
	}
	if res.TriggeredRules[0].TriggeredValue != "zefix_status: DISSOLVED" {
		t.Errorf("unexpected triggered value: %q", res.TriggeredRules[0].TriggeredValue)
	}
	if len(res.FactorScores) != 0 {
		t.Errorf("expected empty factor breakdown, got %+v", res.FactorScores)
	}
}

func TestEvaluateB2BMissingEBITDA(t *testing.T) {
	eng := newTestEngine(t, b2bConfig())

	req := b2bRequest()
	req.Customer.AnnualEBITDA = nil

	res, err := eng.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if res.Tier != "RED" || res.Decision != "DECLINE" {
		t.Errorf("expected RED/DECLINE, got %s/%s", res.Tier, res.Decision)
	}
	if len(res.TriggeredRules) != 1 || res.TriggeredRules[0].RuleCode != "BR-B04" {
		t.Fatalf("expected BR-B04 hit, got %+v", res.TriggeredRules)
	}
	if !hasDefault(res.DefaultsApplied, "annual_ebitda") {
		t.Errorf("expected annual_ebitda default disclosure, got %+v", res.DefaultsApplied)
	}
}

func TestEvaluateB2CSkipsCompanyFactors(t *testing.T) {
	eng := newTestEngine(t, b2bConfig())

	res, err := eng.Evaluate(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(res.FactorScores) != 3 {
		t.Fatalf("expected 3 factor rows, got %+v", res.FactorScores)
	}
	dscr := res.FactorScores[2]
	if dscr.FactorName != "DSCR" || dscr.BinLabel != "≥3" || dscr.RawScore != 5 {
		t.Errorf("unexpected consumer coverage row: %+v", dscr)
	}
	if math.Abs(res.TotalScore-19) > 1e-9 {
		t.Errorf("expected total 19, got %v", res.TotalScore)
	}
	if len(res.TriggeredRules) != 0 {
		t.Errorf("company rules must not run on a consumer request, got %+v", res.TriggeredRules)
	}
}

// --- Test fixtures ---

func fixedNow() time.Time {
	return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, cfg *store.VersionConfig) *Engine {
	t.Helper()
	eng := NewEngine(staticResolver{snap: newTestSnapshot(t, cfg)}, discardLogger())
	eng.now = fixedNow
	return eng
}

func newTestSnapshot(t *testing.T, cfg *store.VersionConfig) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(cfg)
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	return snap
}

// demoConfig is a trimmed v1.2.0: the LTV and Term factors, the four tiers
// and the two age/LTV kill rules.
func demoConfig() *store.VersionConfig {
	return &store.VersionConfig{
		Version: &store.ModelVersion{VersionID: "1.2.0", Status: store.StatusPublished},
		Factors: []*store.FactorConfig{
			{VersionID: "1.2.0", FactorName: "LTV", Weight: 0.15, Enabled: true, DisplayOrder: 1},
			{VersionID: "1.2.0", FactorName: "Term", Weight: 0.10, Enabled: true, DisplayOrder: 2},
		},
		Bins: []*store.FactorBin{
			{FactorName: "LTV", BinOrder: 1, BinLabel: "<75%", UpperBound: float64Ptr(75), RawScore: 8},
			{FactorName: "LTV", BinOrder: 2, BinLabel: "75-85%", LowerBound: float64Ptr(75), LowerInclusive: true, UpperBound: float64Ptr(85), UpperInclusive: true, RawScore: 4},
			{FactorName: "LTV", BinOrder: 3, BinLabel: "85-95%", LowerBound: float64Ptr(85), UpperBound: float64Ptr(95), UpperInclusive: true, RawScore: 0},
			{FactorName: "LTV", BinOrder: 4, BinLabel: ">95%", LowerBound: float64Ptr(95), RawScore: -8},
			{FactorName: "LTV", BinOrder: 5, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
			{FactorName: "Term", BinOrder: 1, BinLabel: "≤36m", UpperBound: float64Ptr(36), UpperInclusive: true, RawScore: 5},
			{FactorName: "Term", BinOrder: 2, BinLabel: "37-48m", LowerBound: float64Ptr(37), LowerInclusive: true, UpperBound: float64Ptr(48), UpperInclusive: true, RawScore: 6},
			{FactorName: "Term", BinOrder: 3, BinLabel: ">48m", LowerBound: float64Ptr(48), RawScore: -3},
		},
		Tiers: []*store.TierThreshold{
			{TierName: "BRIGHT_GREEN", TierOrder: 1, MinScore: float64Ptr(25), Decision: "AUTO_APPROVE", EstimatedPD: float64Ptr(0.015)},
			{TierName: "GREEN", TierOrder: 2, MinScore: float64Ptr(10), Decision: "APPROVE_STANDARD", EstimatedPD: float64Ptr(0.035)},
			{TierName: "YELLOW", TierOrder: 3, MinScore: float64Ptr(0), Decision: "MANUAL_REVIEW", EstimatedPD: float64Ptr(0.07)},
			{TierName: "RED", TierOrder: 4, Decision: "DECLINE", EstimatedPD: float64Ptr(0.15)},
		},
		Rules: []*store.BusinessRule{
			{RuleCode: "BR-01", RuleName: "Minor applicant", ConditionField: "age", ConditionOperator: "<", ConditionValue: "18", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
			{RuleCode: "BR-02", RuleName: "Extreme over-financing", ConditionField: "ltv", ConditionOperator: ">", ConditionValue: "120", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
		},
	}
}

// baseRequest scores LTV 70 (+8) and term 40 (+6) against demoConfig.
func baseRequest() *EvaluationRequest {
	return &EvaluationRequest{
		RequestID: "req-001",
		Timestamp: "2026-02-01T09:59:00Z",
		Customer: Customer{
			CustomerID:       "cust-1",
			DateOfBirth:      "1985-06-15",
			PartyType:        "B2C",
			PermitType:       strPtr("C"),
			MonthlyNetIncome: float64Ptr(7500),
		},
		Vehicle:  Vehicle{VehiclePrice: 50000},
		Contract: Contract{ContractID: "ctr-1", FinancedAmount: 35000, DownpaymentAmount: 15000, TermMonths: 40, MonthlyPayment: 950},
		Dealer:   Dealer{DealerID: "dlr-1"},
	}
}

// b2bConfig extends demoConfig with party-scoped coverage: DSCR for B2C on
// the disposable-income scale, DSCRB2B and CompanyAge for B2B on the EBITDA
// scale, plus the company kill rules.
func b2bConfig() *store.VersionConfig {
	cfg := demoConfig()
	cfg.Factors = append(cfg.Factors,
		&store.FactorConfig{VersionID: "1.2.0", FactorName: "DSCR", PartyType: store.PartyB2C, Weight: 0.20, Enabled: true, DisplayOrder: 3},
		&store.FactorConfig{VersionID: "1.2.0", FactorName: "DSCRB2B", PartyType: store.PartyB2B, Weight: 0.20, Enabled: true, DisplayOrder: 4},
		&store.FactorConfig{VersionID: "1.2.0", FactorName: "CompanyAge", PartyType: store.PartyB2B, Weight: 0.10, Enabled: true, DisplayOrder: 5},
	)
	cfg.Bins = append(cfg.Bins,
		&store.FactorBin{FactorName: "DSCR", BinOrder: 1, BinLabel: "<3", UpperBound: float64Ptr(3), RawScore: -4},
		&store.FactorBin{FactorName: "DSCR", BinOrder: 2, BinLabel: "≥3", LowerBound: float64Ptr(3), LowerInclusive: true, RawScore: 5},
		&store.FactorBin{FactorName: "DSCR", BinOrder: 3, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
		&store.FactorBin{FactorName: "DSCRB2B", BinOrder: 1, BinLabel: "<1.0 (Cannot service)", UpperBound: float64Ptr(1.0), RawScore: -8},
		&store.FactorBin{FactorName: "DSCRB2B", BinOrder: 2, BinLabel: "1.0-1.5 (Tight)", LowerBound: float64Ptr(1.0), LowerInclusive: true, UpperBound: float64Ptr(1.5), RawScore: -3},
		&store.FactorBin{FactorName: "DSCRB2B", BinOrder: 3, BinLabel: "1.5-2.0 (Good)", LowerBound: float64Ptr(1.5), LowerInclusive: true, UpperBound: float64Ptr(2.0), RawScore: 5},
		&store.FactorBin{FactorName: "DSCRB2B", BinOrder: 4, BinLabel: "≥2.0 (Strong)", LowerBound: float64Ptr(2.0), LowerInclusive: true, RawScore: 7},
		&store.FactorBin{FactorName: "DSCRB2B", BinOrder: 5, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
		&store.FactorBin{FactorName: "CompanyAge", BinOrder: 1, BinLabel: "<2y", UpperBound: float64Ptr(2), RawScore: -10},
		&store.FactorBin{FactorName: "CompanyAge", BinOrder: 2, BinLabel: "2-10y", LowerBound: float64Ptr(2), LowerInclusive: true, UpperBound: float64Ptr(10), RawScore: 0},
		&store.FactorBin{FactorName: "CompanyAge", BinOrder: 3, BinLabel: "≥10y", LowerBound: float64Ptr(10), LowerInclusive: true, RawScore: 5},
		&store.FactorBin{FactorName: "CompanyAge", BinOrder: 4, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
	)
	cfg.Rules = append(cfg.Rules,
		&store.BusinessRule{RuleCode: "BR-B01", RuleName: "Company dissolved or suspended", PartyType: store.PartyB2B, ConditionField: "zefix_status", ConditionOperator: "IN", ConditionValue: "DISSOLVED,SUSPENDED", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
		&store.BusinessRule{RuleCode: "BR-B02", RuleName: "Company not in register", PartyType: store.PartyB2B, ConditionField: "zefix_status", ConditionOperator: "==", ConditionValue: "NOT_FOUND", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
		&store.BusinessRule{RuleCode: "BR-B03", RuleName: "Company too new", PartyType: store.PartyB2B, ConditionField: "company_age_years", ConditionOperator: "<", ConditionValue: "2", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
		&store.BusinessRule{RuleCode: "BR-B04", RuleName: "No EBITDA data", PartyType: store.PartyB2B, ConditionField: "annual_ebitda", ConditionOperator: "<=", ConditionValue: "0", ForcedTier: "RED", ForcedDecision: "DECLINE", Enabled: true, Severity: store.SeverityHard},
	)
	return cfg
}

// b2bRequest scores LTV 70 (+8), term 40 (+6), EBITDA coverage
// 240000/71400 = 3.36 (+7) and company age 8 (0) against b2bConfig.
func b2bRequest() *EvaluationRequest {
	return &EvaluationRequest{
		RequestID: "req-b2b-001",
		Timestamp: "2026-02-01T09:59:00Z",
		Customer: Customer{
			CustomerID:       "comp-1",
			DateOfBirth:      "1985-06-15",
			PartyType:        "B2B",
			LegalForm:        "GmbH",
			ZefixStatus:      "ACTIVE",
			CompanyAgeYears:  float64Ptr(8),
			AnnualRevenue:    float64Ptr(900000),
			AnnualEBITDA:     float64Ptr(240000),
			TotalDebtService: float64Ptr(60000),
		},
		Vehicle:  Vehicle{VehiclePrice: 50000},
		Contract: Contract{ContractID: "ctr-b1", FinancedAmount: 35000, DownpaymentAmount: 15000, TermMonths: 40, MonthlyPayment: 950},
		Dealer:   Dealer{DealerID: "dlr-1"},
	}
}

func binsFor(bins []*store.FactorBin, factor string) []*store.FactorBin {
	var kept []*store.FactorBin
	for _, b := range bins {
		if b.FactorName == factor {
			kept = append(kept, b)
		}
	}
	return kept
}

func hasDefault(defaults []DefaultApplied, field string) bool {
	for _, d := range defaults {
		if d.Field == field {
			return true
		}
	}
	return false
}

type staticResolver struct{ snap *Snapshot }

func (r staticResolver) Resolve(_ context.Context, _ string) (*Snapshot, error) {
	return r.snap, nil
}

type recordingResolver struct {
	snap *Snapshot
	got  string
}

func (r *recordingResolver) Resolve(_ context.Context, versionID string) (*Snapshot, error) {
	r.got = versionID
	return r.snap, nil
}

type errResolver struct{}

func (errResolver) Resolve(_ context.Context, _ string) (*Snapshot, error) {
	return nil, errors.New("no published model version")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func float64Ptr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }
