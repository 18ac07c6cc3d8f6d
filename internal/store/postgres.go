package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

const versionColumns = `version_id, description, status, published_at, published_by, created_at, created_by`

func scanVersion(row pgx.Row) (*ModelVersion, error) {
	v := &ModelVersion{}
	var description, publishedBy sql.NullString
	err := row.Scan(
		&v.VersionID, &description, &v.Status,
		&v.PublishedAt, &publishedBy,
		&v.CreatedAt, &v.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		v.Description = description.String
	}
	if publishedBy.Valid {
		v.PublishedBy = publishedBy.String
	}
	return v, nil
}

func (s *PostgresStore) CreateVersion(ctx context.Context, v *ModelVersion) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO risk_model_versions (version_id, description, status, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		v.VersionID, nullString(v.Description), v.Status, v.CreatedBy,
	).Scan(&v.CreatedAt)
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*ModelVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM risk_model_versions WHERE version_id = $1`, versionID)
	v, err := scanVersion(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (s *PostgresStore) ListVersions(ctx context.Context) ([]*ModelVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+versionColumns+`
		FROM risk_model_versions
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*ModelVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetPublishedVersion(ctx context.Context) (*ModelVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM risk_model_versions WHERE status = 'PUBLISHED'`)
	v, err := scanVersion(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// PublishVersion archives whatever is PUBLISHED and promotes the given
// DRAFT in one transaction, so readers never observe zero or two live
// versions. The PUBLISHED and ARCHIVED audit entries ride in the same
// transaction: a live version without its audit trail cannot exist.
func (s *PostgresStore) PublishVersion(ctx context.Context, versionID, actor string) (string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var archived sql.NullString
	err = tx.QueryRow(ctx, `
		UPDATE risk_model_versions SET status = 'ARCHIVED'
		WHERE status = 'PUBLISHED' AND version_id <> $1
		RETURNING version_id`, versionID,
	).Scan(&archived)
	if err != nil && err != pgx.ErrNoRows {
		return "", fmt.Errorf("archive current: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE risk_model_versions
		SET status = 'PUBLISHED', published_at = NOW(), published_by = $2
		WHERE version_id = $1 AND status = 'DRAFT'`,
		versionID, actor,
	)
	if err != nil {
		return "", fmt.Errorf("promote draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("version %s is not a draft", versionID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO risk_calibration_audit (version_id, action, table_name, record_id, changed_by)
		VALUES ($1, 'PUBLISHED', 'risk_model_versions', $1, $2)`,
		versionID, actor,
	)
	if err != nil {
		return "", fmt.Errorf("audit publish: %w", err)
	}
	if archived.Valid {
		_, err = tx.Exec(ctx, `
			INSERT INTO risk_calibration_audit (version_id, action, table_name, record_id, changed_by, change_reason)
			VALUES ($1, 'ARCHIVED', 'risk_model_versions', $1, $2, $3)`,
			archived.String, actor, "displaced by "+versionID,
		)
		if err != nil {
			return "", fmt.Errorf("audit archive: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if archived.Valid {
		return archived.String, nil
	}
	return "", nil
}

// CloneVersionConfig copies every calibration row of baseID into a fresh
// draft, so analysts never start a new version from a blank slate.
func (s *PostgresStore) CloneVersionConfig(ctx context.Context, baseID string, draft *ModelVersion) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO risk_model_versions (version_id, description, status, created_by)
		VALUES ($1, $2, 'DRAFT', $3)
		RETURNING created_at`,
		draft.VersionID, nullString(draft.Description), draft.CreatedBy,
	).Scan(&draft.CreatedAt)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	draft.Status = StatusDraft

	copies := []struct {
		name string
		sql  string
	}{
		{"factors", `
			INSERT INTO risk_factor_configs (version_id, factor_name, party_type, weight, enabled, description, score_range_min, score_range_max, display_order)
			SELECT $1, factor_name, party_type, weight, enabled, description, score_range_min, score_range_max, display_order
			FROM risk_factor_configs WHERE version_id = $2`},
		{"bins", `
			INSERT INTO risk_factor_bins (version_id, factor_name, bin_order, bin_label, lower_bound, upper_bound, lower_inclusive, upper_inclusive, match_value, is_missing_bin, raw_score, risk_interpretation)
			SELECT $1, factor_name, bin_order, bin_label, lower_bound, upper_bound, lower_inclusive, upper_inclusive, match_value, is_missing_bin, raw_score, risk_interpretation
			FROM risk_factor_bins WHERE version_id = $2`},
		{"tiers", `
			INSERT INTO risk_tier_thresholds (version_id, tier_name, tier_order, min_score, decision, estimated_pd, color_hex, description)
			SELECT $1, tier_name, tier_order, min_score, decision, estimated_pd, color_hex, description
			FROM risk_tier_thresholds WHERE version_id = $2`},
		{"rules", `
			INSERT INTO risk_business_rules (version_id, rule_code, party_type, rule_name, description, condition_field, condition_operator, condition_value, forced_tier, forced_decision, enabled, severity)
			SELECT $1, rule_code, party_type, rule_name, description, condition_field, condition_operator, condition_value, forced_tier, forced_decision, enabled, severity
			FROM risk_business_rules WHERE version_id = $2`},
	}
	for _, c := range copies {
		if _, err := tx.Exec(ctx, c.sql, draft.VersionID, baseID); err != nil {
			return fmt.Errorf("copy %s: %w", c.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVersionConfig(ctx context.Context, versionID string) (*VersionConfig, error) {
	version, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, nil
	}

	cfg := &VersionConfig{Version: version}
	if cfg.Factors, err = s.GetFactors(ctx, versionID); err != nil {
		return nil, fmt.Errorf("load factors: %w", err)
	}
	if cfg.Bins, err = s.getAllBins(ctx, versionID); err != nil {
		return nil, fmt.Errorf("load bins: %w", err)
	}
	if cfg.Tiers, err = s.GetTiers(ctx, versionID); err != nil {
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	if cfg.Rules, err = s.GetRules(ctx, versionID); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return cfg, nil
}

const factorColumns = `id, version_id, factor_name, party_type, weight, enabled, description, score_range_min, score_range_max, display_order`

func scanFactor(row pgx.Row) (*FactorConfig, error) {
	f := &FactorConfig{}
	var description sql.NullString
	err := row.Scan(
		&f.ID, &f.VersionID, &f.FactorName, &f.PartyType, &f.Weight, &f.Enabled,
		&description, &f.ScoreRangeMin, &f.ScoreRangeMax, &f.DisplayOrder,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		f.Description = description.String
	}
	return f, nil
}

func (s *PostgresStore) GetFactors(ctx context.Context, versionID string) ([]*FactorConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+factorColumns+`
		FROM risk_factor_configs WHERE version_id = $1
		ORDER BY display_order ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []*FactorConfig
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (s *PostgresStore) GetFactor(ctx context.Context, versionID, factorName string) (*FactorConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+factorColumns+`
		FROM risk_factor_configs WHERE version_id = $1 AND factor_name = $2`,
		versionID, factorName)
	f, err := scanFactor(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (s *PostgresStore) UpdateFactor(ctx context.Context, f *FactorConfig) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_factor_configs SET
			weight = $2, enabled = $3, description = $4,
			score_range_min = $5, score_range_max = $6, display_order = $7
		WHERE id = $1`,
		f.ID, f.Weight, f.Enabled, nullString(f.Description),
		f.ScoreRangeMin, f.ScoreRangeMax, f.DisplayOrder,
	)
	return err
}

const binColumns = `id, version_id, factor_name, bin_order, bin_label, lower_bound, upper_bound,
	lower_inclusive, upper_inclusive, match_value, is_missing_bin, raw_score, risk_interpretation`

func scanBin(row pgx.Row) (*FactorBin, error) {
	b := &FactorBin{}
	var interpretation sql.NullString
	err := row.Scan(
		&b.ID, &b.VersionID, &b.FactorName, &b.BinOrder, &b.BinLabel,
		&b.LowerBound, &b.UpperBound,
		&b.LowerInclusive, &b.UpperInclusive,
		&b.MatchValue, &b.IsMissingBin, &b.RawScore, &interpretation,
	)
	if err != nil {
		return nil, err
	}
	if interpretation.Valid {
		b.RiskInterpretation = interpretation.String
	}
	return b, nil
}

func (s *PostgresStore) GetBins(ctx context.Context, versionID, factorName string) ([]*FactorBin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+binColumns+`
		FROM risk_factor_bins WHERE version_id = $1 AND factor_name = $2
		ORDER BY bin_order ASC`, versionID, factorName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBins(rows)
}

func (s *PostgresStore) getAllBins(ctx context.Context, versionID string) ([]*FactorBin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+binColumns+`
		FROM risk_factor_bins WHERE version_id = $1
		ORDER BY factor_name ASC, bin_order ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBins(rows)
}

func scanBins(rows pgx.Rows) ([]*FactorBin, error) {
	var bins []*FactorBin
	for rows.Next() {
		b, err := scanBin(rows)
		if err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

func (s *PostgresStore) GetBin(ctx context.Context, versionID string, binID int64) (*FactorBin, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+binColumns+`
		FROM risk_factor_bins WHERE id = $1 AND version_id = $2`, binID, versionID)
	b, err := scanBin(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *PostgresStore) UpdateBin(ctx context.Context, b *FactorBin) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_factor_bins SET
			bin_order = $2, bin_label = $3,
			lower_bound = $4, upper_bound = $5,
			lower_inclusive = $6, upper_inclusive = $7,
			match_value = $8, is_missing_bin = $9,
			raw_score = $10, risk_interpretation = $11
		WHERE id = $1`,
		b.ID, b.BinOrder, b.BinLabel,
		b.LowerBound, b.UpperBound,
		b.LowerInclusive, b.UpperInclusive,
		b.MatchValue, b.IsMissingBin,
		b.RawScore, nullString(b.RiskInterpretation),
	)
	return err
}

const tierColumns = `id, version_id, tier_name, tier_order, min_score, decision, estimated_pd, color_hex, description`

func scanTier(row pgx.Row) (*TierThreshold, error) {
	t := &TierThreshold{}
	var colorHex, description sql.NullString
	err := row.Scan(
		&t.ID, &t.VersionID, &t.TierName, &t.TierOrder,
		&t.MinScore, &t.Decision, &t.EstimatedPD,
		&colorHex, &description,
	)
	if err != nil {
		return nil, err
	}
	if colorHex.Valid {
		t.ColorHex = colorHex.String
	}
	if description.Valid {
		t.Description = description.String
	}
	return t, nil
}

func (s *PostgresStore) GetTiers(ctx context.Context, versionID string) ([]*TierThreshold, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tierColumns+`
		FROM risk_tier_thresholds WHERE version_id = $1
		ORDER BY tier_order ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []*TierThreshold
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *PostgresStore) GetTier(ctx context.Context, versionID string, tierID int64) (*TierThreshold, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tierColumns+`
		FROM risk_tier_thresholds WHERE id = $1 AND version_id = $2`, tierID, versionID)
	t, err := scanTier(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *PostgresStore) UpdateTier(ctx context.Context, t *TierThreshold) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_tier_thresholds SET
			tier_name = $2, tier_order = $3, min_score = $4,
			decision = $5, estimated_pd = $6, color_hex = $7, description = $8
		WHERE id = $1`,
		t.ID, t.TierName, t.TierOrder, t.MinScore,
		t.Decision, t.EstimatedPD, nullString(t.ColorHex), nullString(t.Description),
	)
	return err
}

const ruleColumns = `id, version_id, rule_code, party_type, rule_name, description,
	condition_field, condition_operator, condition_value,
	forced_tier, forced_decision, enabled, severity`

func scanRule(row pgx.Row) (*BusinessRule, error) {
	r := &BusinessRule{}
	var description sql.NullString
	err := row.Scan(
		&r.ID, &r.VersionID, &r.RuleCode, &r.PartyType, &r.RuleName, &description,
		&r.ConditionField, &r.ConditionOperator, &r.ConditionValue,
		&r.ForcedTier, &r.ForcedDecision, &r.Enabled, &r.Severity,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		r.Description = description.String
	}
	return r, nil
}

func (s *PostgresStore) GetRules(ctx context.Context, versionID string) ([]*BusinessRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM risk_business_rules WHERE version_id = $1
		ORDER BY rule_code ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) GetRule(ctx context.Context, versionID, ruleCode string) (*BusinessRule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM risk_business_rules WHERE version_id = $1 AND rule_code = $2`,
		versionID, ruleCode)
	r, err := scanRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) UpdateRule(ctx context.Context, r *BusinessRule) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE risk_business_rules SET
			rule_name = $2, description = $3,
			condition_field = $4, condition_operator = $5, condition_value = $6,
			forced_tier = $7, forced_decision = $8, enabled = $9, severity = $10
		WHERE id = $1`,
		r.ID, r.RuleName, nullString(r.Description),
		r.ConditionField, r.ConditionOperator, r.ConditionValue,
		r.ForcedTier, r.ForcedDecision, r.Enabled, r.Severity,
	)
	return err
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e *AuditEntry) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO risk_calibration_audit (version_id, action, table_name, record_id, field_name, old_value, new_value, changed_by, change_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, changed_at`,
		e.VersionID, e.Action, nullString(e.TableName), nullString(e.RecordID),
		nullString(e.FieldName), nullString(e.OldValue), nullString(e.NewValue),
		e.ChangedBy, nullString(e.ChangeReason),
	).Scan(&e.ID, &e.ChangedAt)
}

func (s *PostgresStore) ListAudit(ctx context.Context, versionID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, version_id, action, table_name, record_id, field_name, old_value, new_value, changed_by, changed_at, change_reason
		FROM risk_calibration_audit WHERE version_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2`, versionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var tableName, recordID, fieldName, oldValue, newValue, changeReason sql.NullString
		if err := rows.Scan(
			&e.ID, &e.VersionID, &e.Action,
			&tableName, &recordID, &fieldName, &oldValue, &newValue,
			&e.ChangedBy, &e.ChangedAt, &changeReason,
		); err != nil {
			return nil, err
		}
		if tableName.Valid {
			e.TableName = tableName.String
		}
		if recordID.Valid {
			e.RecordID = recordID.String
		}
		if fieldName.Valid {
			e.FieldName = fieldName.String
		}
		if oldValue.Valid {
			e.OldValue = oldValue.String
		}
		if newValue.Valid {
			e.NewValue = newValue.String
		}
		if changeReason.Valid {
			e.ChangeReason = changeReason.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
