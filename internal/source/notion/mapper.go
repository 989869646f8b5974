package notion

import (
	"strings"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

// mapPage translates one database page (raw JSON) into local-task shape
// using the plugin's field mapping, so the conventional property-name
// alternatives are tried in order.
func mapPage(raw string, mapping plugin.FieldMapping) *syncpkg.Record {
	return &syncpkg.Record{
		ExternalID: mapping.Resolve(raw, "external_id"),
		Title:      mapping.Resolve(raw, "title"),
		Type:       "task",
		Priority:   mapPriority(mapping.Resolve(raw, "priority")),
		Status:     mapStatus(mapping.Resolve(raw, "status")),
		Assignee:   mapping.Resolve(raw, "assignee"),
		DueDate:    mapping.Resolve(raw, "due_date"),
	}
}

func mapPriority(name string) plugin.Priority {
	switch strings.ToLower(name) {
	case "critical", "urgent", "p0":
		return plugin.PriorityCritical
	case "high", "p1":
		return plugin.PriorityHigh
	case "low", "p3":
		return plugin.PriorityLow
	default:
		return plugin.PriorityMedium
	}
}

// mapStatus folds workspace-defined status names into the local vocabulary.
func mapStatus(name string) plugin.Status {
	l := strings.ToLower(name)
	switch {
	case l == "":
		return plugin.StatusNotStarted
	case strings.Contains(l, "progress"), strings.Contains(l, "doing"), strings.Contains(l, "active"):
		return plugin.StatusInProgress
	case strings.Contains(l, "review"):
		return plugin.StatusInReview
	case strings.Contains(l, "waiting"), strings.Contains(l, "blocked"), strings.Contains(l, "hold"):
		return plugin.StatusWaiting
	case strings.Contains(l, "done"), strings.Contains(l, "complete"), strings.Contains(l, "shipped"):
		return plugin.StatusCompleted
	case strings.Contains(l, "cancel"), strings.Contains(l, "won't"), strings.Contains(l, "wont"):
		return plugin.StatusCancelled
	default:
		return plugin.StatusNotStarted
	}
}
