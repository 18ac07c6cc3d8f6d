//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		// Truncate in dependency order; the seeded model stays untouched
		// because tests only create versions prefixed "it-".
		_, _ = s.pool.Exec(ctx, "TRUNCATE risk_assessments CASCADE")
		_, _ = s.pool.Exec(ctx, "TRUNCATE risk_dealer_metrics CASCADE")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_calibration_audit WHERE version_id LIKE 'it-%'")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_business_rules WHERE version_id LIKE 'it-%'")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_tier_thresholds WHERE version_id LIKE 'it-%'")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_factor_bins WHERE version_id LIKE 'it-%'")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_factor_configs WHERE version_id LIKE 'it-%'")
		_, _ = s.pool.Exec(ctx, "DELETE FROM risk_model_versions WHERE version_id LIKE 'it-%'")
		s.Close()
	})

	return s
}

func TestCreateAndGetVersion(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	v := &ModelVersion{
		VersionID:   "it-1.0.0",
		Description: "integration test draft",
		Status:      StatusDraft,
		CreatedBy:   "it-runner",
	}
	if err := s.CreateVersion(ctx, v); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if v.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}

	got, err := s.GetVersion(ctx, "it-1.0.0")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected version, got nil")
	}
	if got.Status != StatusDraft {
		t.Errorf("expected DRAFT, got %s", got.Status)
	}
	if got.PublishedAt != nil {
		t.Error("expected nil published_at on a draft")
	}

	missing, err := s.GetVersion(ctx, "it-nope")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown version, got %v", missing)
	}
}

func TestPublishVersionSwap(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := &ModelVersion{VersionID: "it-2.0.0", Status: StatusDraft, CreatedBy: "it-runner"}
	second := &ModelVersion{VersionID: "it-2.1.0", Status: StatusDraft, CreatedBy: "it-runner"}
	for _, v := range []*ModelVersion{first, second} {
		if err := s.CreateVersion(ctx, v); err != nil {
			t.Fatalf("CreateVersion failed: %v", err)
		}
	}

	archived, err := s.PublishVersion(ctx, "it-2.0.0", "analyst-a")
	if err != nil {
		t.Fatalf("PublishVersion failed: %v", err)
	}
	if archived != "" {
		t.Errorf("expected no archived version on first publish, got %s", archived)
	}

	archived, err = s.PublishVersion(ctx, "it-2.1.0", "analyst-b")
	if err != nil {
		t.Fatalf("PublishVersion failed: %v", err)
	}
	if archived != "it-2.0.0" {
		t.Errorf("expected it-2.0.0 archived, got %s", archived)
	}

	old, err := s.GetVersion(ctx, "it-2.0.0")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if old.Status != StatusArchived {
		t.Errorf("expected ARCHIVED, got %s", old.Status)
	}

	// The swap transaction writes the trail itself, so both entries must
	// exist the moment PublishVersion returns.
	published, err := s.ListAudit(ctx, "it-2.1.0", 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(published) == 0 || published[0].Action != AuditPublished || published[0].ChangedBy != "analyst-b" {
		t.Errorf("expected PUBLISHED audit entry for it-2.1.0, got %+v", published)
	}
	archivedLog, err := s.ListAudit(ctx, "it-2.0.0", 0)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	found := false
	for _, e := range archivedLog {
		if e.Action == AuditArchived && e.ChangedBy == "analyst-b" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ARCHIVED audit entry for it-2.0.0, got %+v", archivedLog)
	}

	// Republishing an archived version must fail.
	if _, err := s.PublishVersion(ctx, "it-2.0.0", "analyst-a"); err == nil {
		t.Error("expected error publishing an archived version")
	}
}

func TestCloneVersionConfig(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	base := &ModelVersion{VersionID: "it-3.0.0", Status: StatusDraft, CreatedBy: "it-runner"}
	if err := s.CreateVersion(ctx, base); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_factor_configs (version_id, factor_name, weight, enabled, display_order)
		VALUES ('it-3.0.0', 'LTV', 0.15, true, 1)`)
	if err != nil {
		t.Fatalf("seed factor failed: %v", err)
	}
	hi := 75.0
	_, err = s.pool.Exec(ctx, `
		INSERT INTO risk_factor_bins (version_id, factor_name, bin_order, bin_label, upper_bound, raw_score)
		VALUES ('it-3.0.0', 'LTV', 1, '<75%', $1, 8)`, hi)
	if err != nil {
		t.Fatalf("seed bin failed: %v", err)
	}

	draft := &ModelVersion{VersionID: "it-3.1.0", Description: "cloned", CreatedBy: "it-runner"}
	if err := s.CloneVersionConfig(ctx, "it-3.0.0", draft); err != nil {
		t.Fatalf("CloneVersionConfig failed: %v", err)
	}
	if draft.Status != StatusDraft {
		t.Errorf("expected DRAFT clone, got %s", draft.Status)
	}

	cfg, err := s.GetVersionConfig(ctx, "it-3.1.0")
	if err != nil {
		t.Fatalf("GetVersionConfig failed: %v", err)
	}
	if len(cfg.Factors) != 1 {
		t.Fatalf("expected 1 cloned factor, got %d", len(cfg.Factors))
	}
	if len(cfg.Bins) != 1 {
		t.Fatalf("expected 1 cloned bin, got %d", len(cfg.Bins))
	}
	if cfg.Bins[0].UpperBound == nil || *cfg.Bins[0].UpperBound != 75 {
		t.Errorf("expected cloned upper bound 75, got %v", cfg.Bins[0].UpperBound)
	}
	if cfg.Bins[0].LowerBound != nil {
		t.Error("expected open lower bound on clone")
	}
}

func TestAssessmentRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	pd := 0.035
	a := &Assessment{
		AssessmentID: uuid.New(),
		RequestID:    "req-it-001",
		ContractID:   "C-9000",
		CustomerID:   "CU-1",
		DealerID:     "D-42",
		VersionID:    "1.2.0",
		TotalScore:   14,
		Tier:         "GREEN",
		Decision:     "APPROVE_STANDARD",
		EstimatedPD:  &pd,
		FactorScores: []map[string]interface{}{
			{"factor": "LTV", "bin": "<75%", "raw_score": 8.0},
		},
		ProcessingTimeMs: 12,
		EvaluatedAt:      time.Now().UTC(),
	}
	if err := s.CreateAssessment(ctx, a); err != nil {
		t.Fatalf("CreateAssessment failed: %v", err)
	}

	got, err := s.GetAssessment(ctx, a.AssessmentID)
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected assessment, got nil")
	}
	if got.Tier != "GREEN" || got.Decision != "APPROVE_STANDARD" {
		t.Errorf("unexpected outcome %s/%s", got.Tier, got.Decision)
	}
	if got.EstimatedPD == nil || *got.EstimatedPD != 0.035 {
		t.Errorf("expected pd 0.035, got %v", got.EstimatedPD)
	}
	if len(got.FactorScores) != 1 || got.FactorScores[0]["factor"] != "LTV" {
		t.Errorf("unexpected factor scores %v", got.FactorScores)
	}

	byReq, err := s.GetAssessmentByRequestID(ctx, "req-it-001")
	if err != nil {
		t.Fatalf("GetAssessmentByRequestID failed: %v", err)
	}
	if byReq == nil || byReq.AssessmentID != a.AssessmentID {
		t.Error("expected replay lookup to return the stored assessment")
	}

	// Duplicate request_id must surface the sentinel so callers can fall
	// back to the replay lookup.
	dup := *a
	dup.AssessmentID = uuid.New()
	if err := s.CreateAssessment(ctx, &dup); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest on duplicate request_id, got %v", err)
	}

	if err := s.SetAssessmentOverride(ctx, a.AssessmentID, "APPROVE_STANDARD", "analyst-x", "collateral topped up"); err != nil {
		t.Fatalf("SetAssessmentOverride failed: %v", err)
	}
	got, err = s.GetAssessment(ctx, a.AssessmentID)
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got.OverrideBy != "analyst-x" || got.OverrideAt == nil {
		t.Errorf("expected override recorded, got by=%s at=%v", got.OverrideBy, got.OverrideAt)
	}
}

func TestUpsertDealerMetricsRerun(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := &DealerMetric{
		DealerID:           "D-7",
		DealerName:         "Garage Sonnenberg",
		SnapshotDate:       day,
		ActiveContracts:    12,
		TotalOriginated:    40,
		DefaultCount:       2,
		CurrentDefaultRate: 0.05,
		ActiveMonths:       18,
		VolumeTier:         "SILVER",
		AvgContractSize:    31000,
		DataSource:         "datahub",
	}
	if err := s.UpsertDealerMetrics(ctx, []*DealerMetric{m}); err != nil {
		t.Fatalf("UpsertDealerMetrics failed: %v", err)
	}

	// Same day rerun with corrected numbers overwrites the row.
	m2 := *m
	m2.DefaultCount = 3
	m2.CurrentDefaultRate = 0.075
	if err := s.UpsertDealerMetrics(ctx, []*DealerMetric{&m2}); err != nil {
		t.Fatalf("rerun UpsertDealerMetrics failed: %v", err)
	}

	list, err := s.ListDealerMetrics(ctx, DealerMetricFilter{})
	if err != nil {
		t.Fatalf("ListDealerMetrics failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 dealer row after rerun, got %d", len(list))
	}
	if list[0].CurrentDefaultRate != 0.075 {
		t.Errorf("expected overwritten rate 0.075, got %f", list[0].CurrentDefaultRate)
	}

	rates, err := s.GetLatestDealerRates(ctx)
	if err != nil {
		t.Fatalf("GetLatestDealerRates failed: %v", err)
	}
	if rates["D-7"] != 0.075 {
		t.Errorf("expected latest rate 0.075, got %f", rates["D-7"])
	}
}
