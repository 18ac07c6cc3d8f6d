package herald

const (
	SubjectDealerRefreshRequest   = "risk.dealer.refresh.request"
	SubjectDealerMetricsRefreshed = "risk.dealer.metrics.refreshed"

	StreamName   = "RISK_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectAssessmentCompleted(id string) string  { return "risk.assessment." + id + ".completed" }
func SubjectAssessmentOverridden(id string) string { return "risk.assessment." + id + ".overridden" }

func SubjectModelDrafted(versionID string) string   { return "risk.model." + versionID + ".drafted" }
func SubjectModelPublished(versionID string) string { return "risk.model." + versionID + ".published" }
func SubjectModelArchived(versionID string) string  { return "risk.model." + versionID + ".archived" }
