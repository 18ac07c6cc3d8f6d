package herald

// AssessmentCompletedEvent is published after every persisted evaluation,
// hard kills included.
type AssessmentCompletedEvent struct {
	AssessmentID   string  `json:"assessment_id"`
	RequestID      string  `json:"request_id"`
	ModelVersion   string  `json:"model_version"`
	TotalScore     float64 `json:"total_score"`
	Tier           string  `json:"tier"`
	Decision       string  `json:"decision"`
	PartyType      string  `json:"party_type,omitempty"`
	DealerID       string  `json:"dealer_id,omitempty"`
	RulesTriggered int     `json:"rules_triggered"`
}

// AssessmentOverriddenEvent records an analyst decision override.
type AssessmentOverriddenEvent struct {
	AssessmentID     string `json:"assessment_id"`
	OriginalDecision string `json:"original_decision"`
	OverrideDecision string `json:"override_decision"`
	OverriddenBy     string `json:"overridden_by"`
	Reason           string `json:"reason,omitempty"`
}

// VersionPublishedEvent announces a calibration going live.
type VersionPublishedEvent struct {
	VersionID         string `json:"version_id"`
	ArchivedVersionID string `json:"archived_version_id,omitempty"`
	PublishedBy       string `json:"published_by"`
}

// VersionDraftedEvent announces a new draft calibration.
type VersionDraftedEvent struct {
	VersionID     string `json:"version_id"`
	BaseVersionID string `json:"base_version_id,omitempty"`
	CreatedBy     string `json:"created_by"`
}

// DealerMetricsRefreshedEvent summarises one refresh cycle.
type DealerMetricsRefreshedEvent struct {
	SnapshotDate     string  `json:"snapshot_date"`
	DealersProcessed int     `json:"dealers_processed"`
	RowsWritten      int     `json:"rows_written"`
	WatchlistCount   int     `json:"watchlist_count"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}
