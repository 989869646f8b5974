package jira

import (
	"strings"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

// mapIssue translates one Jira issue into local-task shape. Status maps via
// the status category key ("new", "indeterminate", "done") so custom
// workflow statuses land in a sensible local state.
func mapIssue(issue *models.IssueScheme) *syncpkg.Record {
	rec := &syncpkg.Record{ExternalID: issue.Key}
	f := issue.Fields
	if f == nil {
		return rec
	}

	rec.Title = f.Summary
	rec.Description = adfToMarkdown(f.Description)
	rec.Labels = f.Labels
	rec.Priority = mapPriority(priorityName(f.Priority))
	rec.Status = mapStatus(statusCategoryKey(f.Status))
	rec.Type = mapType(issueTypeName(f.IssueType))
	if f.Assignee != nil {
		rec.Assignee = f.Assignee.DisplayName
	}
	return rec
}

// mapPriority converts Jira's 5-level priority to the local 4-level one.
func mapPriority(name string) plugin.Priority {
	switch strings.ToLower(name) {
	case "highest":
		return plugin.PriorityCritical
	case "high":
		return plugin.PriorityHigh
	case "low", "lowest":
		return plugin.PriorityLow
	default:
		return plugin.PriorityMedium
	}
}

// mapStatus converts a status category key to a local status. Category keys
// are fixed across Jira instances even when status names are customized.
func mapStatus(categoryKey string) plugin.Status {
	switch categoryKey {
	case "done":
		return plugin.StatusCompleted
	case "indeterminate":
		return plugin.StatusInProgress
	default:
		return plugin.StatusNotStarted
	}
}

func mapType(issueType string) string {
	switch strings.ToLower(issueType) {
	case "bug":
		return "bug"
	case "story", "epic", "improvement", "new feature":
		return "feature"
	default:
		return "task"
	}
}

func priorityName(p *models.PriorityScheme) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func statusCategoryKey(s *models.StatusScheme) string {
	if s == nil || s.StatusCategory == nil {
		return ""
	}
	return s.StatusCategory.Key
}

func issueTypeName(it *models.IssueTypeScheme) string {
	if it == nil {
		return ""
	}
	return it.Name
}
