package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

// Service owns the model lifecycle: draft, patch, validate, publish. Only
// DRAFT versions accept changes; every field change lands in the audit log.
type Service struct {
	store    store.Store
	registry *Registry
	events   herald.Client
	logger   *slog.Logger
}

func NewService(s store.Store, registry *Registry, events herald.Client, logger *slog.Logger) *Service {
	return &Service{store: s, registry: registry, events: events, logger: logger}
}

// CreateDraft opens a new DRAFT version. With a base version its whole
// configuration is cloned; without one the draft starts empty.
func (s *Service) CreateDraft(ctx context.Context, versionID, baseVersion, description, actor string) (*store.ModelVersion, error) {
	existing, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("check version %s: %w", versionID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrConflict)
	}

	draft := &store.ModelVersion{
		VersionID:   versionID,
		Description: description,
		Status:      store.StatusDraft,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   actor,
	}

	if baseVersion == "" {
		if err := s.store.CreateVersion(ctx, draft); err != nil {
			return nil, fmt.Errorf("create draft %s: %w", versionID, err)
		}
	} else {
		base, err := s.store.GetVersion(ctx, baseVersion)
		if err != nil {
			return nil, fmt.Errorf("check base version %s: %w", baseVersion, err)
		}
		if base == nil {
			return nil, fmt.Errorf("base version %s: %w", baseVersion, ErrNotFound)
		}
		if err := s.store.CloneVersionConfig(ctx, baseVersion, draft); err != nil {
			return nil, fmt.Errorf("clone %s into %s: %w", baseVersion, versionID, err)
		}
	}

	reason := "new empty draft"
	if baseVersion != "" {
		reason = "drafted from " + baseVersion
	}
	if err := s.audit(ctx, &store.AuditEntry{
		VersionID:    versionID,
		Action:       store.AuditCreated,
		TableName:    "risk_model_versions",
		RecordID:     versionID,
		ChangedBy:    actor,
		ChangeReason: reason,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("model draft created", "model_version", versionID, "base_version", baseVersion, "actor", actor)
	if s.events != nil {
		_ = s.events.Publish(herald.SubjectModelDrafted(versionID), herald.VersionDraftedEvent{
			VersionID:     versionID,
			BaseVersionID: baseVersion,
			CreatedBy:     actor,
		})
	}
	return draft, nil
}

// FactorPatch carries the updatable factor fields; nil means leave as is.
type FactorPatch struct {
	Weight        *float64 `json:"weight,omitempty"`
	Enabled       *bool    `json:"enabled,omitempty"`
	Description   *string  `json:"description,omitempty"`
	ScoreRangeMin *float64 `json:"score_range_min,omitempty"`
	ScoreRangeMax *float64 `json:"score_range_max,omitempty"`
	DisplayOrder  *int     `json:"display_order,omitempty"`
}

func (s *Service) UpdateFactor(ctx context.Context, versionID, factorName string, p FactorPatch, actor, reason string) (*store.FactorConfig, error) {
	if _, err := s.guardDraft(ctx, versionID); err != nil {
		return nil, err
	}
	f, err := s.store.GetFactor(ctx, versionID, factorName)
	if err != nil {
		return nil, fmt.Errorf("load factor %s: %w", factorName, err)
	}
	if f == nil {
		return nil, fmt.Errorf("factor %s in version %s: %w", factorName, versionID, ErrNotFound)
	}

	var changes []fieldChange
	if p.Weight != nil && *p.Weight != f.Weight {
		changes = append(changes, fieldChange{"weight", fmtFloat(f.Weight), fmtFloat(*p.Weight)})
		f.Weight = *p.Weight
	}
	if p.Enabled != nil && *p.Enabled != f.Enabled {
		changes = append(changes, fieldChange{"enabled", strconv.FormatBool(f.Enabled), strconv.FormatBool(*p.Enabled)})
		f.Enabled = *p.Enabled
	}
	if p.Description != nil && *p.Description != f.Description {
		changes = append(changes, fieldChange{"description", f.Description, *p.Description})
		f.Description = *p.Description
	}
	if p.ScoreRangeMin != nil && !floatPtrEq(p.ScoreRangeMin, f.ScoreRangeMin) {
		changes = append(changes, fieldChange{"score_range_min", fmtFloatPtr(f.ScoreRangeMin), fmtFloatPtr(p.ScoreRangeMin)})
		f.ScoreRangeMin = p.ScoreRangeMin
	}
	if p.ScoreRangeMax != nil && !floatPtrEq(p.ScoreRangeMax, f.ScoreRangeMax) {
		changes = append(changes, fieldChange{"score_range_max", fmtFloatPtr(f.ScoreRangeMax), fmtFloatPtr(p.ScoreRangeMax)})
		f.ScoreRangeMax = p.ScoreRangeMax
	}
	if p.DisplayOrder != nil && *p.DisplayOrder != f.DisplayOrder {
		changes = append(changes, fieldChange{"display_order", strconv.Itoa(f.DisplayOrder), strconv.Itoa(*p.DisplayOrder)})
		f.DisplayOrder = *p.DisplayOrder
	}
	if len(changes) == 0 {
		return f, nil
	}

	if err := s.store.UpdateFactor(ctx, f); err != nil {
		return nil, fmt.Errorf("update factor %s: %w", factorName, err)
	}
	if err := s.auditChanges(ctx, versionID, "risk_factor_configs", factorName, changes, actor, reason); err != nil {
		return nil, err
	}
	return f, nil
}

// BinPatch carries the updatable bin fields. The Clear flags null out a
// bound or match value so a numeric bin can become open-ended or a catch-all.
type BinPatch struct {
	BinLabel           *string  `json:"bin_label,omitempty"`
	LowerBound         *float64 `json:"lower_bound,omitempty"`
	ClearLowerBound    bool     `json:"clear_lower_bound,omitempty"`
	UpperBound         *float64 `json:"upper_bound,omitempty"`
	ClearUpperBound    bool     `json:"clear_upper_bound,omitempty"`
	LowerInclusive     *bool    `json:"lower_inclusive,omitempty"`
	UpperInclusive     *bool    `json:"upper_inclusive,omitempty"`
	MatchValue         *string  `json:"match_value,omitempty"`
	ClearMatchValue    bool     `json:"clear_match_value,omitempty"`
	RawScore           *float64 `json:"raw_score,omitempty"`
	RiskInterpretation *string  `json:"risk_interpretation,omitempty"`
}

func (s *Service) UpdateBin(ctx context.Context, versionID string, binID int64, p BinPatch, actor, reason string) (*store.FactorBin, error) {
	if _, err := s.guardDraft(ctx, versionID); err != nil {
		return nil, err
	}
	b, err := s.store.GetBin(ctx, versionID, binID)
	if err != nil {
		return nil, fmt.Errorf("load bin %d: %w", binID, err)
	}
	if b == nil {
		return nil, fmt.Errorf("bin %d in version %s: %w", binID, versionID, ErrNotFound)
	}

	var changes []fieldChange
	if p.BinLabel != nil && *p.BinLabel != b.BinLabel {
		changes = append(changes, fieldChange{"bin_label", b.BinLabel, *p.BinLabel})
		b.BinLabel = *p.BinLabel
	}
	if p.ClearLowerBound {
		if b.LowerBound != nil {
			changes = append(changes, fieldChange{"lower_bound", fmtFloatPtr(b.LowerBound), "null"})
			b.LowerBound = nil
		}
	} else if p.LowerBound != nil && !floatPtrEq(p.LowerBound, b.LowerBound) {
		changes = append(changes, fieldChange{"lower_bound", fmtFloatPtr(b.LowerBound), fmtFloatPtr(p.LowerBound)})
		b.LowerBound = p.LowerBound
	}
	if p.ClearUpperBound {
		if b.UpperBound != nil {
			changes = append(changes, fieldChange{"upper_bound", fmtFloatPtr(b.UpperBound), "null"})
			b.UpperBound = nil
		}
	} else if p.UpperBound != nil && !floatPtrEq(p.UpperBound, b.UpperBound) {
		changes = append(changes, fieldChange{"upper_bound", fmtFloatPtr(b.UpperBound), fmtFloatPtr(p.UpperBound)})
		b.UpperBound = p.UpperBound
	}
	if p.LowerInclusive != nil && *p.LowerInclusive != b.LowerInclusive {
		changes = append(changes, fieldChange{"lower_inclusive", strconv.FormatBool(b.LowerInclusive), strconv.FormatBool(*p.LowerInclusive)})
		b.LowerInclusive = *p.LowerInclusive
	}
	if p.UpperInclusive != nil && *p.UpperInclusive != b.UpperInclusive {
		changes = append(changes, fieldChange{"upper_inclusive", strconv.FormatBool(b.UpperInclusive), strconv.FormatBool(*p.UpperInclusive)})
		b.UpperInclusive = *p.UpperInclusive
	}
	if p.ClearMatchValue {
		if b.MatchValue != nil {
			changes = append(changes, fieldChange{"match_value", fmtStrPtr(b.MatchValue), "null"})
			b.MatchValue = nil
		}
	} else if p.MatchValue != nil && !strPtrEq(p.MatchValue, b.MatchValue) {
		changes = append(changes, fieldChange{"match_value", fmtStrPtr(b.MatchValue), *p.MatchValue})
		b.MatchValue = p.MatchValue
	}
	if p.RawScore != nil && *p.RawScore != b.RawScore {
		changes = append(changes, fieldChange{"raw_score", fmtFloat(b.RawScore), fmtFloat(*p.RawScore)})
		b.RawScore = *p.RawScore
	}
	if p.RiskInterpretation != nil && *p.RiskInterpretation != b.RiskInterpretation {
		changes = append(changes, fieldChange{"risk_interpretation", b.RiskInterpretation, *p.RiskInterpretation})
		b.RiskInterpretation = *p.RiskInterpretation
	}
	if len(changes) == 0 {
		return b, nil
	}

	if err := s.store.UpdateBin(ctx, b); err != nil {
		return nil, fmt.Errorf("update bin %d: %w", binID, err)
	}
	record := fmt.Sprintf("%s/%d", b.FactorName, binID)
	if err := s.auditChanges(ctx, versionID, "risk_factor_bins", record, changes, actor, reason); err != nil {
		return nil, err
	}
	return b, nil
}

// TierPatch carries the updatable tier fields. ClearMinScore turns the tier
// into the catch-all.
type TierPatch struct {
	MinScore      *float64 `json:"min_score,omitempty"`
	ClearMinScore bool     `json:"clear_min_score,omitempty"`
	Decision      *string  `json:"decision,omitempty"`
	EstimatedPD   *float64 `json:"estimated_pd,omitempty"`
	ColorHex      *string  `json:"color_hex,omitempty"`
	Description   *string  `json:"description,omitempty"`
	TierOrder     *int     `json:"tier_order,omitempty"`
}

func (s *Service) UpdateTier(ctx context.Context, versionID string, tierID int64, p TierPatch, actor, reason string) (*store.TierThreshold, error) {
	if _, err := s.guardDraft(ctx, versionID); err != nil {
		return nil, err
	}
	t, err := s.store.GetTier(ctx, versionID, tierID)
	if err != nil {
		return nil, fmt.Errorf("load tier %d: %w", tierID, err)
	}
	if t == nil {
		return nil, fmt.Errorf("tier %d in version %s: %w", tierID, versionID, ErrNotFound)
	}

	var changes []fieldChange
	if p.ClearMinScore {
		if t.MinScore != nil {
			changes = append(changes, fieldChange{"min_score", fmtFloatPtr(t.MinScore), "null"})
			t.MinScore = nil
		}
	} else if p.MinScore != nil && !floatPtrEq(p.MinScore, t.MinScore) {
		changes = append(changes, fieldChange{"min_score", fmtFloatPtr(t.MinScore), fmtFloatPtr(p.MinScore)})
		t.MinScore = p.MinScore
	}
	if p.Decision != nil && *p.Decision != t.Decision {
		changes = append(changes, fieldChange{"decision", t.Decision, *p.Decision})
		t.Decision = *p.Decision
	}
	if p.EstimatedPD != nil && !floatPtrEq(p.EstimatedPD, t.EstimatedPD) {
		changes = append(changes, fieldChange{"estimated_pd", fmtFloatPtr(t.EstimatedPD), fmtFloatPtr(p.EstimatedPD)})
		t.EstimatedPD = p.EstimatedPD
	}
	if p.ColorHex != nil && *p.ColorHex != t.ColorHex {
		changes = append(changes, fieldChange{"color_hex", t.ColorHex, *p.ColorHex})
		t.ColorHex = *p.ColorHex
	}
	if p.Description != nil && *p.Description != t.Description {
		changes = append(changes, fieldChange{"description", t.Description, *p.Description})
		t.Description = *p.Description
	}
	if p.TierOrder != nil && *p.TierOrder != t.TierOrder {
		changes = append(changes, fieldChange{"tier_order", strconv.Itoa(t.TierOrder), strconv.Itoa(*p.TierOrder)})
		t.TierOrder = *p.TierOrder
	}
	if len(changes) == 0 {
		return t, nil
	}

	if err := s.store.UpdateTier(ctx, t); err != nil {
		return nil, fmt.Errorf("update tier %d: %w", tierID, err)
	}
	if err := s.auditChanges(ctx, versionID, "risk_tier_thresholds", t.TierName, changes, actor, reason); err != nil {
		return nil, err
	}
	return t, nil
}

// RulePatch carries the updatable rule fields.
type RulePatch struct {
	RuleName          *string             `json:"rule_name,omitempty"`
	Description       *string             `json:"description,omitempty"`
	ConditionField    *string             `json:"condition_field,omitempty"`
	ConditionOperator *string             `json:"condition_operator,omitempty"`
	ConditionValue    *string             `json:"condition_value,omitempty"`
	ForcedTier        *string             `json:"forced_tier,omitempty"`
	ForcedDecision    *string             `json:"forced_decision,omitempty"`
	Enabled           *bool               `json:"enabled,omitempty"`
	Severity          *store.RuleSeverity `json:"severity,omitempty"`
}

func (s *Service) UpdateRule(ctx context.Context, versionID, ruleCode string, p RulePatch, actor, reason string) (*store.BusinessRule, error) {
	if _, err := s.guardDraft(ctx, versionID); err != nil {
		return nil, err
	}
	r, err := s.store.GetRule(ctx, versionID, ruleCode)
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", ruleCode, err)
	}
	if r == nil {
		return nil, fmt.Errorf("rule %s in version %s: %w", ruleCode, versionID, ErrNotFound)
	}

	var changes []fieldChange
	if p.RuleName != nil && *p.RuleName != r.RuleName {
		changes = append(changes, fieldChange{"rule_name", r.RuleName, *p.RuleName})
		r.RuleName = *p.RuleName
	}
	if p.Description != nil && *p.Description != r.Description {
		changes = append(changes, fieldChange{"description", r.Description, *p.Description})
		r.Description = *p.Description
	}
	if p.ConditionField != nil && *p.ConditionField != r.ConditionField {
		changes = append(changes, fieldChange{"condition_field", r.ConditionField, *p.ConditionField})
		r.ConditionField = *p.ConditionField
	}
	if p.ConditionOperator != nil && *p.ConditionOperator != r.ConditionOperator {
		changes = append(changes, fieldChange{"condition_operator", r.ConditionOperator, *p.ConditionOperator})
		r.ConditionOperator = *p.ConditionOperator
	}
	if p.ConditionValue != nil && *p.ConditionValue != r.ConditionValue {
		changes = append(changes, fieldChange{"condition_value", r.ConditionValue, *p.ConditionValue})
		r.ConditionValue = *p.ConditionValue
	}
	if p.ForcedTier != nil && *p.ForcedTier != r.ForcedTier {
		changes = append(changes, fieldChange{"forced_tier", r.ForcedTier, *p.ForcedTier})
		r.ForcedTier = *p.ForcedTier
	}
	if p.ForcedDecision != nil && *p.ForcedDecision != r.ForcedDecision {
		changes = append(changes, fieldChange{"forced_decision", r.ForcedDecision, *p.ForcedDecision})
		r.ForcedDecision = *p.ForcedDecision
	}
	if p.Enabled != nil && *p.Enabled != r.Enabled {
		changes = append(changes, fieldChange{"enabled", strconv.FormatBool(r.Enabled), strconv.FormatBool(*p.Enabled)})
		r.Enabled = *p.Enabled
	}
	if p.Severity != nil && *p.Severity != r.Severity {
		changes = append(changes, fieldChange{"severity", string(r.Severity), string(*p.Severity)})
		r.Severity = *p.Severity
	}
	if len(changes) == 0 {
		return r, nil
	}

	if r.Severity != store.SeverityHard && r.Severity != store.SeveritySoft {
		return nil, &ValidationError{VersionID: versionID, Violations: []string{
			fmt.Sprintf("rule %s: severity %q must be HARD or SOFT", ruleCode, r.Severity),
		}}
	}
	if err := scoring.ValidateRule(r); err != nil {
		return nil, &ValidationError{VersionID: versionID, Violations: []string{err.Error()}}
	}

	if err := s.store.UpdateRule(ctx, r); err != nil {
		return nil, fmt.Errorf("update rule %s: %w", ruleCode, err)
	}
	if err := s.auditChanges(ctx, versionID, "risk_business_rules", ruleCode, changes, actor, reason); err != nil {
		return nil, err
	}
	return r, nil
}

// Publish validates the draft, swaps it to PUBLISHED (archiving any prior
// published version), refreshes the registry, and emits lifecycle events.
// A failed validation leaves every status untouched.
func (s *Service) Publish(ctx context.Context, versionID, actor string) (*store.ModelVersion, error) {
	cfg, err := s.store.GetVersionConfig(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", versionID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if cfg.Version.Status != store.StatusDraft {
		return nil, &ImmutableVersionError{VersionID: versionID, Status: cfg.Version.Status}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	// The store writes the PUBLISHED/ARCHIVED audit entries inside the
	// publish transaction, so the swap and its trail land together.
	archivedID, err := s.store.PublishVersion(ctx, versionID, actor)
	if err != nil {
		return nil, fmt.Errorf("publish version %s: %w", versionID, err)
	}

	if err := s.registry.Reload(ctx); err != nil {
		s.logger.Error("registry reload after publish failed", "model_version", versionID, "error", err)
	}

	s.logger.Info("model version published", "model_version", versionID, "archived_version", archivedID, "actor", actor)
	if s.events != nil {
		event := herald.VersionPublishedEvent{
			VersionID:         versionID,
			ArchivedVersionID: archivedID,
			PublishedBy:       actor,
		}
		_ = s.events.Publish(herald.SubjectModelPublished(versionID), event)
		if archivedID != "" {
			_ = s.events.Publish(herald.SubjectModelArchived(archivedID), event)
		}
	}

	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("reload version %s: %w", versionID, err)
	}
	return v, nil
}

// Validate runs the publish checks without changing anything.
func (s *Service) Validate(ctx context.Context, versionID string) error {
	cfg, err := s.store.GetVersionConfig(ctx, versionID)
	if err != nil {
		return fmt.Errorf("load version %s: %w", versionID, err)
	}
	if cfg == nil {
		return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	return Validate(cfg)
}

func (s *Service) Audit(ctx context.Context, versionID string, limit int) ([]*store.AuditEntry, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("check version %s: %w", versionID, err)
	}
	if v == nil {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	return s.store.ListAudit(ctx, versionID, limit)
}

func (s *Service) guardDraft(ctx context.Context, versionID string) (*store.ModelVersion, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("check version %s: %w", versionID, err)
	}
	if v == nil {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if v.Status != store.StatusDraft {
		return nil, &ImmutableVersionError{VersionID: versionID, Status: v.Status}
	}
	return v, nil
}

type fieldChange struct {
	field string
	old   string
	new   string
}

func (s *Service) auditChanges(ctx context.Context, versionID, table, record string, changes []fieldChange, actor, reason string) error {
	for _, c := range changes {
		if err := s.audit(ctx, &store.AuditEntry{
			VersionID:    versionID,
			Action:       store.AuditUpdated,
			TableName:    table,
			RecordID:     record,
			FieldName:    c.field,
			OldValue:     c.old,
			NewValue:     c.new,
			ChangedBy:    actor,
			ChangeReason: reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, e *store.AuditEntry) error {
	if err := s.store.AppendAudit(ctx, e); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtFloatPtr(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmtFloat(*v)
}

func fmtStrPtr(v *string) string {
	if v == nil {
		return "null"
	}
	return *v
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
