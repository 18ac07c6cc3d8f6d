package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateRequest signals that an assessment with the same request_id
// already exists. Callers fall back to the stored response.
var ErrDuplicateRequest = errors.New("request_id already assessed")

type VersionStatus string

const (
	StatusDraft     VersionStatus = "DRAFT"
	StatusPublished VersionStatus = "PUBLISHED"
	StatusArchived  VersionStatus = "ARCHIVED"
)

// Party scopes for factors and rules. An empty scope reads as ALL.
const (
	PartyAll = "ALL"
	PartyB2C = "B2C"
	PartyB2B = "B2B"
)

type RuleSeverity string

const (
	SeverityHard RuleSeverity = "HARD"
	SeveritySoft RuleSeverity = "SOFT"
)

type AuditAction string

const (
	AuditCreated   AuditAction = "CREATED"
	AuditUpdated   AuditAction = "UPDATED"
	AuditPublished AuditAction = "PUBLISHED"
	AuditArchived  AuditAction = "ARCHIVED"
)

// ModelVersion is one immutable-once-published snapshot of the scoring
// configuration. At most one version is PUBLISHED at any time.
type ModelVersion struct {
	VersionID   string        `json:"version_id"`
	Description string        `json:"description,omitempty"`
	Status      VersionStatus `json:"status"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	PublishedBy string        `json:"published_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CreatedBy   string        `json:"created_by"`
}

// FactorConfig declares one scoring factor within a version. Weight is
// retained for reporting only; the composite score sums bin raw scores
// without weighting. PartyType limits the factor to B2C or B2B
// applications; ALL applies to both.
type FactorConfig struct {
	ID            int64    `json:"id"`
	VersionID     string   `json:"version_id"`
	FactorName    string   `json:"factor_name"`
	PartyType     string   `json:"party_type,omitempty"`
	Weight        float64  `json:"weight"`
	Enabled       bool     `json:"enabled"`
	Description   string   `json:"description,omitempty"`
	ScoreRangeMin *float64 `json:"score_range_min,omitempty"`
	ScoreRangeMax *float64 `json:"score_range_max,omitempty"`
	DisplayOrder  int      `json:"display_order"`
}

// FactorBin is one scored bucket for a factor. Numeric bins use the bounds
// (null = open-ended, each side independently inclusive); categorical bins
// use MatchValue; a bin with neither is a catch-all for any present value.
// At most one bin per factor carries IsMissingBin and is selected when the
// input is absent.
type FactorBin struct {
	ID                 int64    `json:"id"`
	VersionID          string   `json:"version_id"`
	FactorName         string   `json:"factor_name"`
	BinOrder           int      `json:"bin_order"`
	BinLabel           string   `json:"bin_label"`
	LowerBound         *float64 `json:"lower_bound,omitempty"`
	UpperBound         *float64 `json:"upper_bound,omitempty"`
	LowerInclusive     bool     `json:"lower_inclusive"`
	UpperInclusive     bool     `json:"upper_inclusive"`
	MatchValue         *string  `json:"match_value,omitempty"`
	IsMissingBin       bool     `json:"is_missing_bin"`
	RawScore           float64  `json:"raw_score"`
	RiskInterpretation string   `json:"risk_interpretation,omitempty"`
}

// TierThreshold maps a composite score range to a tier and decision.
// Exactly one tier per version has a null MinScore: the catch-all.
type TierThreshold struct {
	ID          int64    `json:"id"`
	VersionID   string   `json:"version_id"`
	TierName    string   `json:"tier_name"`
	TierOrder   int      `json:"tier_order"`
	MinScore    *float64 `json:"min_score,omitempty"`
	Decision    string   `json:"decision"`
	EstimatedPD *float64 `json:"estimated_pd,omitempty"`
	ColorHex    string   `json:"color_hex,omitempty"`
	Description string   `json:"description,omitempty"`
}

// BusinessRule is a configurable kill-rule. HARD rules force the rule's
// tier/decision before any scoring happens; SOFT rules only flag.
// PartyType scopes the rule the same way it scopes factors.
type BusinessRule struct {
	ID                int64        `json:"id"`
	VersionID         string       `json:"version_id"`
	RuleCode          string       `json:"rule_code"`
	PartyType         string       `json:"party_type,omitempty"`
	RuleName          string       `json:"rule_name"`
	Description       string       `json:"description,omitempty"`
	ConditionField    string       `json:"condition_field"`
	ConditionOperator string       `json:"condition_operator"`
	ConditionValue    string       `json:"condition_value"`
	ForcedTier        string       `json:"forced_tier"`
	ForcedDecision    string       `json:"forced_decision"`
	Enabled           bool         `json:"enabled"`
	Severity          RuleSeverity `json:"severity"`
}

// AuditEntry is one append-only calibration change record. Entries are
// never updated or deleted.
type AuditEntry struct {
	ID           int64       `json:"id"`
	VersionID    string      `json:"version_id"`
	Action       AuditAction `json:"action"`
	TableName    string      `json:"table_name,omitempty"`
	RecordID     string      `json:"record_id,omitempty"`
	FieldName    string      `json:"field_name,omitempty"`
	OldValue     string      `json:"old_value,omitempty"`
	NewValue     string      `json:"new_value,omitempty"`
	ChangedBy    string      `json:"changed_by"`
	ChangedAt    time.Time   `json:"changed_at"`
	ChangeReason string      `json:"change_reason,omitempty"`
}

// Assessment is the persisted outcome of one evaluation request.
type Assessment struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	RequestID    string    `json:"request_id"`
	ContractID   string    `json:"contract_id"`
	CustomerID   string    `json:"customer_id"`
	DealerID     string    `json:"dealer_id,omitempty"`

	// Scoring outputs
	VersionID   string   `json:"model_version"`
	TotalScore  float64  `json:"total_score"`
	Tier        string   `json:"tier"`
	Decision    string   `json:"decision"`
	EstimatedPD *float64 `json:"estimated_pd,omitempty"`

	// Breakdown blobs
	FactorScores    []map[string]interface{} `json:"factor_scores"`
	DSCR            map[string]interface{}   `json:"dscr,omitempty"`
	TriggeredRules  []map[string]interface{} `json:"triggered_rules,omitempty"`
	DefaultsApplied []map[string]interface{} `json:"defaults_applied,omitempty"`

	// Legacy scorecard
	LegacyScore *int    `json:"legacy_score,omitempty"`
	LegacyBand  *string `json:"legacy_band,omitempty"`

	// Full request/response for replay
	RequestPayload  map[string]interface{} `json:"request_payload,omitempty"`
	ResponsePayload map[string]interface{} `json:"response_payload,omitempty"`

	// Analyst override
	OverrideDecision string     `json:"override_decision,omitempty"`
	OverrideBy       string     `json:"override_by,omitempty"`
	OverrideReason   string     `json:"override_reason,omitempty"`
	OverrideAt       *time.Time `json:"override_at,omitempty"`

	ProcessingTimeMs int       `json:"processing_time_ms"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
	CreatedAt        time.Time `json:"created_at"`
}

type AssessmentFilter struct {
	Tier       string
	Decision   string
	DealerID   string
	CustomerID string
	Limit      int
	Offset     int
}

// AssessmentStats aggregates recent evaluation outcomes for the admin UI.
type AssessmentStats struct {
	WindowDays       int            `json:"window_days"`
	TotalAssessments int            `json:"total_assessments"`
	TierCounts       map[string]int `json:"tier_counts"`
	DecisionCounts   map[string]int `json:"decision_counts"`
	AvgTotalScore    float64        `json:"avg_total_score"`
	AvgProcessingMs  float64        `json:"avg_processing_ms"`
	OverriddenCount  int            `json:"overridden_count"`
}

// DealerMetric is one nightly snapshot of a dealer's portfolio performance,
// refreshed from the warehouse. The current default rate feeds the scoring
// request's dealer_default_rate attribute.
type DealerMetric struct {
	ID                  int64     `json:"id"`
	DealerID            string    `json:"dealer_id"`
	DealerName          string    `json:"dealer_name,omitempty"`
	SnapshotDate        time.Time `json:"snapshot_date"`
	ActiveContracts     int       `json:"active_contracts"`
	TotalOriginated     int       `json:"total_originated"`
	DefaultCount        int       `json:"default_count"`
	CurrentDefaultRate  float64   `json:"current_default_rate"`
	PreviousDefaultRate *float64  `json:"previous_default_rate,omitempty"`
	DefaultRateTrend    string    `json:"default_rate_trend,omitempty"`
	ActiveMonths        int       `json:"active_months"`
	VolumeTier          string    `json:"volume_tier,omitempty"`
	AvgContractSize     float64   `json:"avg_contract_size"`
	IsWatchlist         bool      `json:"is_watchlist"`
	WatchlistReason     string    `json:"watchlist_reason,omitempty"`
	DataSource          string    `json:"data_source"`
	CreatedAt           time.Time `json:"created_at"`
}

type DealerMetricFilter struct {
	WatchlistOnly bool
	Limit         int
	Offset        int
}

// VersionConfig bundles every calibration row of one version, loaded in a
// single consistent read for snapshot building.
type VersionConfig struct {
	Version *ModelVersion
	Factors []*FactorConfig
	Bins    []*FactorBin
	Tiers   []*TierThreshold
	Rules   []*BusinessRule
}

type Store interface {
	// Model versions
	CreateVersion(ctx context.Context, v *ModelVersion) error
	GetVersion(ctx context.Context, versionID string) (*ModelVersion, error)
	ListVersions(ctx context.Context) ([]*ModelVersion, error)
	GetPublishedVersion(ctx context.Context) (*ModelVersion, error)
	// PublishVersion transitions versionID to PUBLISHED and any prior
	// PUBLISHED version to ARCHIVED, writing the PUBLISHED/ARCHIVED audit
	// entries in the same transaction. Returns the archived version id,
	// if any.
	PublishVersion(ctx context.Context, versionID, actor string) (string, error)
	// CloneVersionConfig copies every factor, bin, tier, and rule row of
	// baseID into a fresh DRAFT newID.
	CloneVersionConfig(ctx context.Context, baseID string, draft *ModelVersion) error

	// Calibration config
	GetVersionConfig(ctx context.Context, versionID string) (*VersionConfig, error)
	GetFactors(ctx context.Context, versionID string) ([]*FactorConfig, error)
	GetFactor(ctx context.Context, versionID, factorName string) (*FactorConfig, error)
	UpdateFactor(ctx context.Context, f *FactorConfig) error
	GetBins(ctx context.Context, versionID, factorName string) ([]*FactorBin, error)
	GetBin(ctx context.Context, versionID string, binID int64) (*FactorBin, error)
	UpdateBin(ctx context.Context, b *FactorBin) error
	GetTiers(ctx context.Context, versionID string) ([]*TierThreshold, error)
	GetTier(ctx context.Context, versionID string, tierID int64) (*TierThreshold, error)
	UpdateTier(ctx context.Context, t *TierThreshold) error
	GetRules(ctx context.Context, versionID string) ([]*BusinessRule, error)
	GetRule(ctx context.Context, versionID, ruleCode string) (*BusinessRule, error)
	UpdateRule(ctx context.Context, r *BusinessRule) error

	// Audit log (append-only)
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, versionID string, limit int) ([]*AuditEntry, error)

	// Assessments
	CreateAssessment(ctx context.Context, a *Assessment) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error)
	GetAssessmentByRequestID(ctx context.Context, requestID string) (*Assessment, error)
	ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*Assessment, error)
	SetAssessmentOverride(ctx context.Context, id uuid.UUID, decision, actor, reason string) error
	GetAssessmentStats(ctx context.Context, days int) (*AssessmentStats, error)

	// Dealer metrics
	UpsertDealerMetrics(ctx context.Context, metrics []*DealerMetric) error
	ListDealerMetrics(ctx context.Context, filter DealerMetricFilter) ([]*DealerMetric, error)
	GetLatestDealerRates(ctx context.Context) (map[string]float64, error)

	Close() error
}
