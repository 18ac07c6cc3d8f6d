// Package storetest provides an in-memory store.Store for handler and
// service tests. IDs, timestamps, orderings and not-found semantics follow
// the postgres implementation.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LimmatCapital/Verdict/internal/store"
)

type Memory struct {
	mu sync.Mutex

	versions    map[string]*store.ModelVersion
	factors     []*store.FactorConfig
	bins        []*store.FactorBin
	tiers       []*store.TierThreshold
	rules       []*store.BusinessRule
	audit       []*store.AuditEntry
	assessments map[uuid.UUID]*store.Assessment
	byRequest   map[string]uuid.UUID
	dealers     []*store.DealerMetric

	nextID int64
}

func New() *Memory {
	return &Memory{
		versions:    make(map[string]*store.ModelVersion),
		assessments: make(map[uuid.UUID]*store.Assessment),
		byRequest:   make(map[string]uuid.UUID),
	}
}

// Seed loads a complete version configuration, assigning row ids.
func (m *Memory) Seed(cfg *store.VersionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := cfg.Version
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.versions[v.VersionID] = v
	for _, f := range cfg.Factors {
		f.ID = m.id()
		f.VersionID = v.VersionID
		m.factors = append(m.factors, f)
	}
	for _, b := range cfg.Bins {
		b.ID = m.id()
		b.VersionID = v.VersionID
		m.bins = append(m.bins, b)
	}
	for _, t := range cfg.Tiers {
		t.ID = m.id()
		t.VersionID = v.VersionID
		m.tiers = append(m.tiers, t)
	}
	for _, r := range cfg.Rules {
		r.ID = m.id()
		r.VersionID = v.VersionID
		m.rules = append(m.rules, r)
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) Close() error { return nil }

// --- Model versions ---

func (m *Memory) CreateVersion(_ context.Context, v *store.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[v.VersionID]; ok {
		return fmt.Errorf("version %s already exists", v.VersionID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.versions[v.VersionID] = v
	return nil
}

// Single-row getters return copies, as a scanning store would.

func (m *Memory) GetVersion(_ context.Context, versionID string) (*store.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *Memory) ListVersions(_ context.Context) ([]*store.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.ModelVersion, 0, len(m.versions))
	for _, v := range m.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].VersionID > out[j].VersionID
	})
	return out, nil
}

func (m *Memory) GetPublishedVersion(_ context.Context) (*store.ModelVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Status == store.StatusPublished {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) PublishVersion(_ context.Context, versionID, actor string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.versions[versionID]
	if !ok || target.Status != store.StatusDraft {
		return "", fmt.Errorf("version %s is not a draft", versionID)
	}

	archived := ""
	for _, v := range m.versions {
		if v.Status == store.StatusPublished && v.VersionID != versionID {
			v.Status = store.StatusArchived
			archived = v.VersionID
		}
	}

	now := time.Now()
	target.Status = store.StatusPublished
	target.PublishedAt = &now
	target.PublishedBy = actor

	// The status swap and its audit entries are one atomic step, as in the
	// postgres transaction.
	m.audit = append(m.audit, &store.AuditEntry{
		ID:        m.id(),
		VersionID: versionID,
		Action:    store.AuditPublished,
		TableName: "risk_model_versions",
		RecordID:  versionID,
		ChangedBy: actor,
		ChangedAt: now,
	})
	if archived != "" {
		m.audit = append(m.audit, &store.AuditEntry{
			ID:           m.id(),
			VersionID:    archived,
			Action:       store.AuditArchived,
			TableName:    "risk_model_versions",
			RecordID:     archived,
			ChangedBy:    actor,
			ChangedAt:    now,
			ChangeReason: "displaced by " + versionID,
		})
	}
	return archived, nil
}

func (m *Memory) CloneVersionConfig(_ context.Context, baseID string, draft *store.ModelVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.versions[draft.VersionID]; ok {
		return fmt.Errorf("version %s already exists", draft.VersionID)
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}
	m.versions[draft.VersionID] = draft

	for _, f := range m.factors {
		if f.VersionID == baseID {
			cp := *f
			cp.ID = m.id()
			cp.VersionID = draft.VersionID
			m.factors = append(m.factors, &cp)
		}
	}
	for _, b := range m.bins {
		if b.VersionID == baseID {
			cp := *b
			cp.ID = m.id()
			cp.VersionID = draft.VersionID
			m.bins = append(m.bins, &cp)
		}
	}
	for _, t := range m.tiers {
		if t.VersionID == baseID {
			cp := *t
			cp.ID = m.id()
			cp.VersionID = draft.VersionID
			m.tiers = append(m.tiers, &cp)
		}
	}
	for _, r := range m.rules {
		if r.VersionID == baseID {
			cp := *r
			cp.ID = m.id()
			cp.VersionID = draft.VersionID
			m.rules = append(m.rules, &cp)
		}
	}
	return nil
}

// --- Calibration config ---

func (m *Memory) GetVersionConfig(ctx context.Context, versionID string) (*store.VersionConfig, error) {
	version, err := m.GetVersion(ctx, versionID)
	if err != nil || version == nil {
		return nil, err
	}
	cfg := &store.VersionConfig{Version: version}
	if cfg.Factors, err = m.GetFactors(ctx, versionID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, b := range m.bins {
		if b.VersionID == versionID {
			cfg.Bins = append(cfg.Bins, b)
		}
	}
	m.mu.Unlock()

	if cfg.Tiers, err = m.GetTiers(ctx, versionID); err != nil {
		return nil, err
	}
	if cfg.Rules, err = m.GetRules(ctx, versionID); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Memory) GetFactors(_ context.Context, versionID string) ([]*store.FactorConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.FactorConfig
	for _, f := range m.factors {
		if f.VersionID == versionID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (m *Memory) GetFactor(_ context.Context, versionID, factorName string) (*store.FactorConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.factors {
		if f.VersionID == versionID && f.FactorName == factorName {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateFactor(_ context.Context, f *store.FactorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.factors {
		if existing.ID == f.ID {
			m.factors[i] = f
			return nil
		}
	}
	return nil
}

func (m *Memory) GetBins(_ context.Context, versionID, factorName string) ([]*store.FactorBin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.FactorBin
	for _, b := range m.bins {
		if b.VersionID == versionID && b.FactorName == factorName {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BinOrder < out[j].BinOrder })
	return out, nil
}

func (m *Memory) GetBin(_ context.Context, versionID string, binID int64) (*store.FactorBin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bins {
		if b.VersionID == versionID && b.ID == binID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateBin(_ context.Context, b *store.FactorBin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.bins {
		if existing.ID == b.ID {
			m.bins[i] = b
			return nil
		}
	}
	return nil
}

func (m *Memory) GetTiers(_ context.Context, versionID string) ([]*store.TierThreshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.TierThreshold
	for _, t := range m.tiers {
		if t.VersionID == versionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TierOrder < out[j].TierOrder })
	return out, nil
}

func (m *Memory) GetTier(_ context.Context, versionID string, tierID int64) (*store.TierThreshold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tiers {
		if t.VersionID == versionID && t.ID == tierID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateTier(_ context.Context, t *store.TierThreshold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.tiers {
		if existing.ID == t.ID {
			m.tiers[i] = t
			return nil
		}
	}
	return nil
}

func (m *Memory) GetRules(_ context.Context, versionID string) ([]*store.BusinessRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.BusinessRule
	for _, r := range m.rules {
		if r.VersionID == versionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleCode < out[j].RuleCode })
	return out, nil
}

func (m *Memory) GetRule(_ context.Context, versionID, ruleCode string) (*store.BusinessRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.VersionID == versionID && r.RuleCode == ruleCode {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) UpdateRule(_ context.Context, r *store.BusinessRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rules {
		if existing.ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	return nil
}

// --- Audit ---

func (m *Memory) AppendAudit(_ context.Context, e *store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.id()
	if e.ChangedAt.IsZero() {
		e.ChangedAt = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, versionID string, limit int) ([]*store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []*store.AuditEntry
	for _, e := range m.audit {
		if e.VersionID == versionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ChangedAt.After(out[j].ChangedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Assessments ---

func (m *Memory) CreateAssessment(_ context.Context, a *store.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRequest[a.RequestID]; ok {
		return fmt.Errorf("assessment for request %s: %w", a.RequestID, store.ErrDuplicateRequest)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.assessments[a.AssessmentID] = a
	m.byRequest[a.RequestID] = a.AssessmentID
	return nil
}

func (m *Memory) GetAssessment(_ context.Context, id uuid.UUID) (*store.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessments[id], nil
}

func (m *Memory) GetAssessmentByRequestID(_ context.Context, requestID string) (*store.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRequest[requestID]
	if !ok {
		return nil, nil
	}
	return m.assessments[id], nil
}

func (m *Memory) ListAssessments(_ context.Context, filter store.AssessmentFilter) ([]*store.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []*store.Assessment
	for _, a := range m.assessments {
		if filter.Tier != "" && a.Tier != filter.Tier {
			continue
		}
		if filter.Decision != "" && a.Decision != filter.Decision {
			continue
		}
		if filter.DealerID != "" && a.DealerID != filter.DealerID {
			continue
		}
		if filter.CustomerID != "" && a.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatedAt.After(out[j].EvaluatedAt) })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SetAssessmentOverride(_ context.Context, id uuid.UUID, decision, actor, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[id]
	if !ok {
		return fmt.Errorf("assessment %s not found", id)
	}
	now := time.Now()
	a.OverrideDecision = decision
	a.OverrideBy = actor
	a.OverrideReason = reason
	a.OverrideAt = &now
	return nil
}

func (m *Memory) GetAssessmentStats(_ context.Context, days int) (*store.AssessmentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	stats := &store.AssessmentStats{
		WindowDays:     days,
		TierCounts:     make(map[string]int),
		DecisionCounts: make(map[string]int),
	}
	var scoreSum, msSum float64
	for _, a := range m.assessments {
		if a.EvaluatedAt.Before(cutoff) {
			continue
		}
		stats.TotalAssessments++
		stats.TierCounts[a.Tier]++
		stats.DecisionCounts[a.Decision]++
		scoreSum += a.TotalScore
		msSum += float64(a.ProcessingTimeMs)
		if a.OverrideDecision != "" {
			stats.OverriddenCount++
		}
	}
	if stats.TotalAssessments > 0 {
		stats.AvgTotalScore = scoreSum / float64(stats.TotalAssessments)
		stats.AvgProcessingMs = msSum / float64(stats.TotalAssessments)
	}
	return stats, nil
}

// --- Dealer metrics ---

func snapshotDay(t time.Time) string { return t.Format("2006-01-02") }

func (m *Memory) UpsertDealerMetrics(_ context.Context, metrics []*store.DealerMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dm := range metrics {
		replaced := false
		for i, existing := range m.dealers {
			if existing.DealerID == dm.DealerID && snapshotDay(existing.SnapshotDate) == snapshotDay(dm.SnapshotDate) {
				dm.ID = existing.ID
				dm.CreatedAt = existing.CreatedAt
				m.dealers[i] = dm
				replaced = true
				break
			}
		}
		if !replaced {
			dm.ID = m.id()
			if dm.CreatedAt.IsZero() {
				dm.CreatedAt = time.Now()
			}
			m.dealers = append(m.dealers, dm)
		}
	}
	return nil
}

func (m *Memory) latestByDealer() map[string]*store.DealerMetric {
	latest := make(map[string]*store.DealerMetric)
	for _, dm := range m.dealers {
		cur, ok := latest[dm.DealerID]
		if !ok || dm.SnapshotDate.After(cur.SnapshotDate) {
			latest[dm.DealerID] = dm
		}
	}
	return latest
}

func (m *Memory) ListDealerMetrics(_ context.Context, filter store.DealerMetricFilter) ([]*store.DealerMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []*store.DealerMetric
	for _, dm := range m.latestByDealer() {
		if filter.WatchlistOnly && !dm.IsWatchlist {
			continue
		}
		out = append(out, dm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentDefaultRate != out[j].CurrentDefaultRate {
			return out[i].CurrentDefaultRate > out[j].CurrentDefaultRate
		}
		return out[i].DealerID < out[j].DealerID
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetLatestDealerRates(_ context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rates := make(map[string]float64)
	for id, dm := range m.latestByDealer() {
		rates[id] = dm.CurrentDefaultRate
	}
	return rates, nil
}
