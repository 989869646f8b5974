package github

import (
	"testing"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func TestMapIssue(t *testing.T) {
	issue := &gogithub.Issue{
		Number: gogithub.Ptr(412),
		Title:  gogithub.Ptr("Login fails with SSO"),
		Body:   gogithub.Ptr("steps to reproduce..."),
		State:  gogithub.Ptr("open"),
		Assignee: &gogithub.User{
			Login: gogithub.Ptr("ada"),
		},
		Labels: []*gogithub.Label{
			{Name: gogithub.Ptr("bug")},
			{Name: gogithub.Ptr("p1")},
		},
	}

	rec := mapIssue(issue)

	if rec.ExternalID != "412" {
		t.Errorf("external id = %q", rec.ExternalID)
	}
	if rec.Title != "Login fails with SSO" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Type != "bug" {
		t.Errorf("type = %q, want bug", rec.Type)
	}
	if rec.Priority != plugin.PriorityHigh {
		t.Errorf("priority = %s, want high", rec.Priority)
	}
	if rec.Status != plugin.StatusNotStarted {
		t.Errorf("status = %s, want notstarted", rec.Status)
	}
	if rec.Assignee != "ada" {
		t.Errorf("assignee = %q", rec.Assignee)
	}
	if len(rec.Labels) != 1 || rec.Labels[0] != "bug" {
		t.Errorf("labels = %v, want [bug] (p1 consumed into priority)", rec.Labels)
	}
}

func TestStatusFromState(t *testing.T) {
	if got := statusFromState("closed"); got != plugin.StatusCompleted {
		t.Errorf("closed = %s", got)
	}
	if got := statusFromState("open"); got != plugin.StatusNotStarted {
		t.Errorf("open = %s", got)
	}
}

func TestPriorityFromLabels(t *testing.T) {
	tests := []struct {
		labels   []string
		expected plugin.Priority
		rest     int
	}{
		{[]string{"critical"}, plugin.PriorityCritical, 0},
		{[]string{"P0"}, plugin.PriorityCritical, 0},
		{[]string{"blocker", "low"}, plugin.PriorityCritical, 0},
		{[]string{"urgent"}, plugin.PriorityHigh, 0},
		{[]string{"priority: high"}, plugin.PriorityHigh, 0},
		{[]string{"minor"}, plugin.PriorityLow, 0},
		{[]string{"bug", "frontend"}, plugin.PriorityMedium, 2},
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
		{[]string{"bug"}, "bug"},
		{[]string{"enhancement"}, "feature"},
		{[]string{"documentation"}, "docs"},
		{[]string{"question"}, "task"},
		{nil, "task"},
	}
	for _, tt := range tests {
		if got := typeFromLabels(tt.labels); got != tt.expected {
			t.Errorf("typeFromLabels(%v) = %q, want %q", tt.labels, got, tt.expected)
		}
	}
}
