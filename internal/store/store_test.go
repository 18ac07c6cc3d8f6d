package store

import (
	"testing"
)

func TestVersionStatusValues(t *testing.T) {
	statuses := []VersionStatus{StatusDraft, StatusPublished, StatusArchived}
	expected := []string{"DRAFT", "PUBLISHED", "ARCHIVED"}
	for i, s := range statuses {
		if string(s) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], s)
		}
	}
}

func TestAuditActionValues(t *testing.T) {
	actions := []AuditAction{AuditCreated, AuditUpdated, AuditPublished, AuditArchived}
	expected := []string{"CREATED", "UPDATED", "PUBLISHED", "ARCHIVED"}
	for i, a := range actions {
		if string(a) != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], a)
		}
	}
}

func TestAssessmentFilterDefaults(t *testing.T) {
	f := AssessmentFilter{}
	if f.Limit != 0 {
		t.Errorf("expected 0 default limit, got %d", f.Limit)
	}
	if f.Tier != "" {
		t.Error("expected empty tier filter")
	}
	if f.DealerID != "" {
		t.Error("expected empty dealer filter")
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("expected nil for empty string")
	}
	got := nullString("x")
	if got == nil || *got != "x" {
		t.Errorf("expected pointer to x, got %v", got)
	}
}
