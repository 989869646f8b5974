package hubspot

import (
	"strings"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

// mapTicket translates one CRM ticket into local-task shape using cached
// pipeline metadata to resolve the stage's open/closed state.
func mapTicket(t ticket, meta *metadataEntry) *syncpkg.Record {
	return &syncpkg.Record{
		ExternalID:  t.ID,
		Title:       t.Properties["subject"],
		Description: t.Properties["content"],
		Type:        "ticket",
		Priority:    mapPriority(t.Properties["hs_ticket_priority"]),
		Status:      mapStage(t.Properties["hs_pipeline_stage"], meta),
	}
}

func mapPriority(p string) plugin.Priority {
	switch strings.ToUpper(p) {
	case "URGENT":
		return plugin.PriorityCritical
	case "HIGH":
		return plugin.PriorityHigh
	case "LOW":
		return plugin.PriorityLow
	default:
		return plugin.PriorityMedium
	}
}

// mapStage resolves a pipeline stage to a local status. The stage's
// ticketState metadata is authoritative for closure; open stages fall back
// to label heuristics since stage names are free-form per portal.
func mapStage(stageID string, meta *metadataEntry) plugin.Status {
	st, ok := meta.stages[stageID]
	if !ok {
		return plugin.StatusNotStarted
	}
	if st.Metadata.TicketState == "CLOSED" {
		return plugin.StatusCompleted
	}
	return statusFromLabel(st.Label)
}

func statusFromLabel(label string) plugin.Status {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "progress"):
		return plugin.StatusInProgress
	case strings.Contains(l, "review"):
		return plugin.StatusInReview
	case strings.Contains(l, "waiting"), strings.Contains(l, "blocked"), strings.Contains(l, "hold"):
		return plugin.StatusWaiting
	case strings.Contains(l, "closed"), strings.Contains(l, "done"), strings.Contains(l, "resolved"):
		return plugin.StatusCompleted
	default:
		return plugin.StatusNotStarted
	}
}
