package scoring

import (
	"errors"
	"testing"

	"github.com/LimmatCapital/Verdict/internal/store"
)

func testFactor(name string, bins ...*store.FactorBin) *Factor {
	for _, b := range bins {
		b.FactorName = name
	}
	return &Factor{
		Config: &store.FactorConfig{FactorName: name, Enabled: true, Weight: 0.1},
		Bins:   bins,
	}
}

func TestSelectBinNumericBounds(t *testing.T) {
	f := testFactor("LTV",
		&store.FactorBin{BinOrder: 1, BinLabel: "<75%", UpperBound: float64Ptr(75), RawScore: 8},
		&store.FactorBin{BinOrder: 2, BinLabel: "75-85%", LowerBound: float64Ptr(75), LowerInclusive: true, UpperBound: float64Ptr(85), UpperInclusive: true, RawScore: 4},
		&store.FactorBin{BinOrder: 3, BinLabel: "85-95%", LowerBound: float64Ptr(85), UpperBound: float64Ptr(95), UpperInclusive: true, RawScore: 0},
		&store.FactorBin{BinOrder: 4, BinLabel: ">95%", LowerBound: float64Ptr(95), RawScore: -8},
		&store.FactorBin{BinOrder: 5, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
	)

	tests := []struct {
		value float64
		want  string
	}{
		{0, "<75%"},
		{74.99, "<75%"},
		{75, "75-85%"},
		{85, "75-85%"},
		{85.01, "85-95%"},
		{95, "85-95%"},
		{95.01, ">95%"},
		{400, ">95%"},
	}
	for _, tt := range tests {
		bin, err := SelectBin("1.2.0", f, numAttr(tt.value), true)
		if err != nil {
			t.Fatalf("SelectBin(%v) failed: %v", tt.value, err)
		}
		if bin.BinLabel != tt.want {
			t.Errorf("value %v: expected bin %q, got %q", tt.value, tt.want, bin.BinLabel)
		}
	}
}

func TestSelectBinMissingValue(t *testing.T) {
	f := testFactor("CRIF",
		&store.FactorBin{BinOrder: 1, BinLabel: "any", RawScore: 1},
		&store.FactorBin{BinOrder: 2, BinLabel: "MISSING", IsMissingBin: true, RawScore: -5},
	)

	bin, err := SelectBin("1.2.0", f, AttrValue{}, false)
	if err != nil {
		t.Fatalf("SelectBin failed: %v", err)
	}
	if !bin.IsMissingBin || bin.RawScore != -5 {
		t.Errorf("expected missing bin, got %+v", bin)
	}
}

func TestSelectBinMissingValueWithoutMissingBin(t *testing.T) {
	f := testFactor("Term",
		&store.FactorBin{BinOrder: 1, BinLabel: "≤36m", UpperBound: float64Ptr(36), UpperInclusive: true, RawScore: 5},
	)

	_, err := SelectBin("1.2.0", f, AttrValue{}, false)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.FactorName != "Term" {
		t.Errorf("expected Term in error, got %s", cfgErr.FactorName)
	}
}

func TestSelectBinCategorical(t *testing.T) {
	match := func(v string) *string { return &v }
	f := testFactor("Permit",
		&store.FactorBin{BinOrder: 1, BinLabel: "B2B", MatchValue: match("B2B"), RawScore: -3},
		&store.FactorBin{BinOrder: 2, BinLabel: "B_permit", MatchValue: match("B"), RawScore: -3},
		&store.FactorBin{BinOrder: 3, BinLabel: "C_permit", MatchValue: match("C"), RawScore: 5},
		&store.FactorBin{BinOrder: 4, BinLabel: "L/Diplomat", MatchValue: match("L"), RawScore: -1},
		&store.FactorBin{BinOrder: 5, BinLabel: "Other_B2C", RawScore: 2},
	)

	tests := []struct {
		value string
		want  string
	}{
		{"B2B", "B2B"},
		{"C", "C_permit"},
		{"L", "L/Diplomat"},
		{"UNKNOWN", "Other_B2C"},
		{"anything", "Other_B2C"},
	}
	for _, tt := range tests {
		bin, err := SelectBin("1.2.0", f, textAttr(tt.value), true)
		if err != nil {
			t.Fatalf("SelectBin(%q) failed: %v", tt.value, err)
		}
		if bin.BinLabel != tt.want {
			t.Errorf("value %q: expected bin %q, got %q", tt.value, tt.want, bin.BinLabel)
		}
	}
}

func TestSelectBinMixedCategoricalAndNumeric(t *testing.T) {
	match := func(v string) *string { return &v }
	f := testFactor("Intrum",
		&store.FactorBin{BinOrder: 1, BinLabel: "0 (No data)", MatchValue: match("0"), RawScore: -4},
		&store.FactorBin{BinOrder: 2, BinLabel: "1", MatchValue: match("1"), RawScore: 1},
		&store.FactorBin{BinOrder: 3, BinLabel: "2-3", LowerBound: float64Ptr(2), LowerInclusive: true, UpperBound: float64Ptr(3), UpperInclusive: true, RawScore: -1},
		&store.FactorBin{BinOrder: 4, BinLabel: ">3", LowerBound: float64Ptr(3), RawScore: 5},
	)

	tests := []struct {
		value float64
		want  string
	}{
		{0, "0 (No data)"},
		{1, "1"},
		{2, "2-3"},
		{3, "2-3"},
		{4, ">3"},
	}
	for _, tt := range tests {
		bin, err := SelectBin("1.2.0", f, numAttr(tt.value), true)
		if err != nil {
			t.Fatalf("SelectBin(%v) failed: %v", tt.value, err)
		}
		if bin.BinLabel != tt.want {
			t.Errorf("value %v: expected bin %q, got %q", tt.value, tt.want, bin.BinLabel)
		}
	}
}

func TestSelectBinPresentValueNeverUsesMissingBin(t *testing.T) {
	f := testFactor("ZEK",
		&store.FactorBin{BinOrder: 1, BinLabel: "NOT_CHECKED", IsMissingBin: true, RawScore: 0},
	)

	_, err := SelectBin("1.2.0", f, textAttr("clean"), true)
	var unmatched *UnmatchedValueError
	if !errors.As(err, &unmatched) {
		t.Fatalf("expected UnmatchedValueError, got %v", err)
	}
	if unmatched.Value != "clean" {
		t.Errorf("expected offending value in error, got %q", unmatched.Value)
	}
}

func TestSelectBinTextOnlyValueSkipsNumericBins(t *testing.T) {
	f := testFactor("ZEK",
		&store.FactorBin{BinOrder: 1, BinLabel: "low", LowerBound: float64Ptr(0), LowerInclusive: true, UpperBound: float64Ptr(5), UpperInclusive: true, RawScore: 1},
	)

	if _, err := SelectBin("1.2.0", f, textAttr("2+"), true); err == nil {
		t.Fatal("expected unmatched error for text value against numeric bins")
	}
}
