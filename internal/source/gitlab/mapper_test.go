package gitlab

import (
	"testing"
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func TestMapIssue(t *testing.T) {
	due := gogitlab.ISOTime(time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC))
	issue := &gogitlab.Issue{
		IID:         204,
		Title:       "Pipeline cache misses",
		Description: "cache key churns on every run",
		State:       "opened",
		Labels:      []string{"type::bug", "priority::high"},
		Assignee:    &gogitlab.IssueAssignee{Username: "grace"},
		DueDate:     &due,
	}

	rec := mapIssue(issue)

	if rec.ExternalID != "204" {
		t.Errorf("external id = %q", rec.ExternalID)
	}
	if rec.Type != "bug" {
		t.Errorf("type = %q, want bug", rec.Type)
	}
	if rec.Priority != plugin.PriorityHigh {
		t.Errorf("priority = %s, want high", rec.Priority)
	}
	if rec.Status != plugin.StatusNotStarted {
		t.Errorf("status = %s", rec.Status)
	}
	if rec.Assignee != "grace" {
		t.Errorf("assignee = %q", rec.Assignee)
	}
	if rec.DueDate != "2026-09-15" {
		t.Errorf("due date = %q", rec.DueDate)
	}
	if len(rec.Labels) != 1 || rec.Labels[0] != "type::bug" {
		t.Errorf("labels = %v, want [type::bug] (priority label consumed)", rec.Labels)
	}
}

func TestStatusFromState(t *testing.T) {
	if got := statusFromState("closed"); got != plugin.StatusCompleted {
		t.Errorf("closed = %s", got)
	}
	if got := statusFromState("opened"); got != plugin.StatusNotStarted {
		t.Errorf("opened = %s", got)
	}
}

func TestPriorityFromScopedLabels(t *testing.T) {
	tests := []struct {
		labels   []string
		expected plugin.Priority
		rest     int
	}{
		{[]string{"priority::critical"}, plugin.PriorityCritical, 0},
		{[]string{"priority::high"}, plugin.PriorityHigh, 0},
		{[]string{"priority::low"}, plugin.PriorityLow, 0},
		{[]string{"P1"}, plugin.PriorityHigh, 0},
		{[]string{"team::frontend"}, plugin.PriorityMedium, 1},
		{nil, plugin.PriorityMedium, 0},
	}
	for _, tt := range tests {
		got, rest := priorityFromLabels(tt.labels)
		if got != tt.expected {
			t.Errorf("priorityFromLabels(%v) = %v, want %v", tt.labels, got, tt.expected)
		}
		if len(rest) != tt.rest {
			t.Errorf("priorityFromLabels(%v) rest = %v, want %d labels", tt.labels, rest, tt.rest)
		}
	}
}

func TestTypeFromLabels(t *testing.T) {
	tests := []struct {
		labels   []string
		expected string
	}{
		{[]string{"type::bug"}, "bug"},
		{[]string{"feature"}, "feature"},
		{[]string{"type::documentation"}, "docs"},
		{[]string{"backend"}, "task"},
	}
	for _, tt := range tests {
		if got := typeFromLabels(tt.labels); got != tt.expected {
			t.Errorf("typeFromLabels(%v) = %q, want %q", tt.labels, got, tt.expected)
		}
	}
}
