package scoring

import "fmt"

// ConfigError reports a calibration defect discovered at evaluation time,
// such as a factor without a missing-value bin or a tier table with no
// catch-all. It aborts the request; the model needs recalibration.
type ConfigError struct {
	VersionID  string
	FactorName string
	Reason     string
}

func (e *ConfigError) Error() string {
	if e.FactorName != "" {
		return fmt.Sprintf("model %s: factor %s: %s", e.VersionID, e.FactorName, e.Reason)
	}
	return fmt.Sprintf("model %s: %s", e.VersionID, e.Reason)
}

// UnmatchedValueError reports a present input value that fell through every
// bin of its factor. Scoring aborts rather than defaulting the factor to
// zero, which would silently skew the composite.
type UnmatchedValueError struct {
	FactorName string
	Value      string
}

func (e *UnmatchedValueError) Error() string {
	return fmt.Sprintf("factor %s: value %q matches no bin", e.FactorName, e.Value)
}

// MissingFieldError reports a rule condition field absent from the derived
// request attributes. The rule treats it as a non-trigger; the error is a
// data-quality signal, never fatal.
type MissingFieldError struct {
	RuleCode string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("rule %s: field %s not present in request", e.RuleCode, e.Field)
}
