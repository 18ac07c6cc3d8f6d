package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const assessmentColumns = `assessment_id, request_id, contract_id, customer_id, dealer_id,
	model_version, total_score, tier, decision, estimated_pd,
	factor_scores, dscr, triggered_rules, defaults_applied,
	legacy_score, legacy_band,
	request_payload, response_payload,
	override_decision, override_by, override_reason, override_at,
	processing_time_ms, evaluated_at, created_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	a := &Assessment{}
	var dealerID, overrideDecision, overrideBy, overrideReason sql.NullString
	var factorScoresJSON, dscrJSON, rulesJSON, defaultsJSON []byte
	var requestJSON, responseJSON []byte

	err := row.Scan(
		&a.AssessmentID, &a.RequestID, &a.ContractID, &a.CustomerID, &dealerID,
		&a.VersionID, &a.TotalScore, &a.Tier, &a.Decision, &a.EstimatedPD,
		&factorScoresJSON, &dscrJSON, &rulesJSON, &defaultsJSON,
		&a.LegacyScore, &a.LegacyBand,
		&requestJSON, &responseJSON,
		&overrideDecision, &overrideBy, &overrideReason, &a.OverrideAt,
		&a.ProcessingTimeMs, &a.EvaluatedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dealerID.Valid {
		a.DealerID = dealerID.String
	}
	if overrideDecision.Valid {
		a.OverrideDecision = overrideDecision.String
	}
	if overrideBy.Valid {
		a.OverrideBy = overrideBy.String
	}
	if overrideReason.Valid {
		a.OverrideReason = overrideReason.String
	}
	if factorScoresJSON != nil {
		_ = json.Unmarshal(factorScoresJSON, &a.FactorScores)
	}
	if dscrJSON != nil {
		_ = json.Unmarshal(dscrJSON, &a.DSCR)
	}
	if rulesJSON != nil {
		_ = json.Unmarshal(rulesJSON, &a.TriggeredRules)
	}
	if defaultsJSON != nil {
		_ = json.Unmarshal(defaultsJSON, &a.DefaultsApplied)
	}
	if requestJSON != nil {
		_ = json.Unmarshal(requestJSON, &a.RequestPayload)
	}
	if responseJSON != nil {
		_ = json.Unmarshal(responseJSON, &a.ResponsePayload)
	}
	return a, nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *Assessment) error {
	factorScoresJSON, _ := json.Marshal(a.FactorScores)
	dscrJSON, _ := json.Marshal(a.DSCR)
	rulesJSON, _ := json.Marshal(a.TriggeredRules)
	defaultsJSON, _ := json.Marshal(a.DefaultsApplied)
	requestJSON, _ := json.Marshal(a.RequestPayload)
	responseJSON, _ := json.Marshal(a.ResponsePayload)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO risk_assessments (assessment_id, request_id, contract_id, customer_id, dealer_id,
			model_version, total_score, tier, decision, estimated_pd,
			factor_scores, dscr, triggered_rules, defaults_applied,
			legacy_score, legacy_band,
			request_payload, response_payload,
			processing_time_ms, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at`,
		a.AssessmentID, a.RequestID, a.ContractID, a.CustomerID, nullString(a.DealerID),
		a.VersionID, a.TotalScore, a.Tier, a.Decision, a.EstimatedPD,
		factorScoresJSON, dscrJSON, rulesJSON, defaultsJSON,
		a.LegacyScore, a.LegacyBand,
		requestJSON, responseJSON,
		a.ProcessingTimeMs, a.EvaluatedAt,
	).Scan(&a.CreatedAt)

	// Two concurrent evaluations of the same request race on the request_id
	// unique index; the loser replays the winner's stored response.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("assessment for request %s: %w", a.RequestID, ErrDuplicateRequest)
	}
	return err
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+assessmentColumns+`
		FROM risk_assessments WHERE assessment_id = $1`, id)
	a, err := scanAssessment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) GetAssessmentByRequestID(ctx context.Context, requestID string) (*Assessment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+assessmentColumns+`
		FROM risk_assessments WHERE request_id = $1`, requestID)
	a, err := scanAssessment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) ListAssessments(ctx context.Context, filter AssessmentFilter) ([]*Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Tier != "" {
		n++
		query += fmt.Sprintf(" AND tier = $%d", n)
		args = append(args, filter.Tier)
	}
	if filter.Decision != "" {
		n++
		query += fmt.Sprintf(" AND decision = $%d", n)
		args = append(args, filter.Decision)
	}
	if filter.DealerID != "" {
		n++
		query += fmt.Sprintf(" AND dealer_id = $%d", n)
		args = append(args, filter.DealerID)
	}
	if filter.CustomerID != "" {
		n++
		query += fmt.Sprintf(" AND customer_id = $%d", n)
		args = append(args, filter.CustomerID)
	}

	query += " ORDER BY evaluated_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

func (s *PostgresStore) SetAssessmentOverride(ctx context.Context, id uuid.UUID, decision, actor, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE risk_assessments
		SET override_decision = $2, override_by = $3, override_reason = $4, override_at = NOW()
		WHERE assessment_id = $1`,
		id, decision, actor, nullString(reason),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assessment %s not found", id)
	}
	return nil
}

func (s *PostgresStore) GetAssessmentStats(ctx context.Context, days int) (*AssessmentStats, error) {
	if days <= 0 {
		days = 30
	}
	stats := &AssessmentStats{
		WindowDays:     days,
		TierCounts:     map[string]int{},
		DecisionCounts: map[string]int{},
	}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(total_score), 0),
			COALESCE(AVG(processing_time_ms), 0),
			COUNT(*) FILTER (WHERE override_decision IS NOT NULL)
		FROM risk_assessments
		WHERE evaluated_at >= NOW() - make_interval(days => $1)`, days,
	).Scan(&stats.TotalAssessments, &stats.AvgTotalScore, &stats.AvgProcessingMs, &stats.OverriddenCount)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tier, COUNT(*)
		FROM risk_assessments
		WHERE evaluated_at >= NOW() - make_interval(days => $1)
		GROUP BY tier`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		stats.TierCounts[tier] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT decision, COUNT(*)
		FROM risk_assessments
		WHERE evaluated_at >= NOW() - make_interval(days => $1)
		GROUP BY decision`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var decision string
		var count int
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, err
		}
		stats.DecisionCounts[decision] = count
	}
	return stats, rows.Err()
}

// --- Dealer metrics ---

const dealerColumns = `id, dealer_id, dealer_name, snapshot_date,
	active_contracts, total_originated, default_count,
	current_default_rate, previous_default_rate, default_rate_trend,
	active_months, volume_tier, avg_contract_size,
	is_watchlist, watchlist_reason, data_source, created_at`

func scanDealerMetric(row pgx.Row) (*DealerMetric, error) {
	m := &DealerMetric{}
	var dealerName, trend, volumeTier, watchlistReason sql.NullString
	err := row.Scan(
		&m.ID, &m.DealerID, &dealerName, &m.SnapshotDate,
		&m.ActiveContracts, &m.TotalOriginated, &m.DefaultCount,
		&m.CurrentDefaultRate, &m.PreviousDefaultRate, &trend,
		&m.ActiveMonths, &volumeTier, &m.AvgContractSize,
		&m.IsWatchlist, &watchlistReason, &m.DataSource, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dealerName.Valid {
		m.DealerName = dealerName.String
	}
	if trend.Valid {
		m.DefaultRateTrend = trend.String
	}
	if volumeTier.Valid {
		m.VolumeTier = volumeTier.String
	}
	if watchlistReason.Valid {
		m.WatchlistReason = watchlistReason.String
	}
	return m, nil
}

// UpsertDealerMetrics writes one snapshot per dealer keyed on
// (dealer_id, snapshot_date), so a rerun of the same refresh day
// overwrites rather than duplicates.
func (s *PostgresStore) UpsertDealerMetrics(ctx context.Context, metrics []*DealerMetric) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range metrics {
		err := tx.QueryRow(ctx, `
			INSERT INTO risk_dealer_metrics (dealer_id, dealer_name, snapshot_date,
				active_contracts, total_originated, default_count,
				current_default_rate, previous_default_rate, default_rate_trend,
				active_months, volume_tier, avg_contract_size,
				is_watchlist, watchlist_reason, data_source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (dealer_id, snapshot_date) DO UPDATE SET
				dealer_name = EXCLUDED.dealer_name,
				active_contracts = EXCLUDED.active_contracts,
				total_originated = EXCLUDED.total_originated,
				default_count = EXCLUDED.default_count,
				current_default_rate = EXCLUDED.current_default_rate,
				previous_default_rate = EXCLUDED.previous_default_rate,
				default_rate_trend = EXCLUDED.default_rate_trend,
				active_months = EXCLUDED.active_months,
				volume_tier = EXCLUDED.volume_tier,
				avg_contract_size = EXCLUDED.avg_contract_size,
				is_watchlist = EXCLUDED.is_watchlist,
				watchlist_reason = EXCLUDED.watchlist_reason,
				data_source = EXCLUDED.data_source
			RETURNING id, created_at`,
			m.DealerID, nullString(m.DealerName), m.SnapshotDate,
			m.ActiveContracts, m.TotalOriginated, m.DefaultCount,
			m.CurrentDefaultRate, m.PreviousDefaultRate, nullString(m.DefaultRateTrend),
			m.ActiveMonths, nullString(m.VolumeTier), m.AvgContractSize,
			m.IsWatchlist, nullString(m.WatchlistReason), m.DataSource,
		).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert dealer %s: %w", m.DealerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListDealerMetrics returns the latest snapshot per dealer, riskiest first.
func (s *PostgresStore) ListDealerMetrics(ctx context.Context, filter DealerMetricFilter) ([]*DealerMetric, error) {
	query := `
		SELECT ` + dealerColumns + ` FROM (
			SELECT DISTINCT ON (dealer_id) ` + dealerColumns + `
			FROM risk_dealer_metrics
			ORDER BY dealer_id ASC, snapshot_date DESC
		) latest WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.WatchlistOnly {
		query += " AND is_watchlist"
	}

	query += " ORDER BY current_default_rate DESC, dealer_id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, limit)

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*DealerMetric
	for rows.Next() {
		m, err := scanDealerMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// GetLatestDealerRates maps dealer_id to its most recent default rate for
// request enrichment at evaluation time.
func (s *PostgresStore) GetLatestDealerRates(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (dealer_id) dealer_id, current_default_rate
		FROM risk_dealer_metrics
		ORDER BY dealer_id ASC, snapshot_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make(map[string]float64)
	for rows.Next() {
		var dealerID string
		var rate float64
		if err := rows.Scan(&dealerID, &rate); err != nil {
			return nil, err
		}
		rates[dealerID] = rate
	}
	return rates, rows.Err()
}
