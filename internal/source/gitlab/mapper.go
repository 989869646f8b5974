package gitlab

import (
	"strconv"
	"strings"
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

// timeNow is swappable in tests.
var timeNow = time.Now

// mapIssue translates one GitLab issue into local-task shape. Priority and
// type come from labels; scoped labels ("priority::high") are supported.
func mapIssue(issue *gogitlab.Issue) *syncpkg.Record {
	priority, rest := priorityFromLabels(issue.Labels)
	rec := &syncpkg.Record{
		ExternalID:  strconv.FormatInt(issue.IID, 10),
		Title:       issue.Title,
		Description: issue.Description,
		Type:        typeFromLabels(issue.Labels),
		Priority:    priority,
		Status:      statusFromState(issue.State),
		Labels:      rest,
	}
	if issue.Assignee != nil {
		rec.Assignee = issue.Assignee.Username
	}
	if issue.DueDate != nil {
		rec.DueDate = time.Time(*issue.DueDate).Format(time.DateOnly)
	}
	return rec
}

func statusFromState(state string) plugin.Status {
	if state == "closed" {
		return plugin.StatusCompleted
	}
	return plugin.StatusNotStarted
}

// priorityFromLabels partitions labels into a priority and the passthrough
// remainder. Priority labels, scoped ("priority::high") or plain, are
// consumed rather than kept; the most urgent match wins.
func priorityFromLabels(labels []string) (plugin.Priority, []string) {
	rank := map[plugin.Priority]int{
		plugin.PriorityCritical: 3,
		plugin.PriorityHigh:     2,
		plugin.PriorityLow:      1,
	}

	var best plugin.Priority
	rest := make([]string, 0, len(labels))
	for _, label := range labels {
		p := labelPriority(strings.ToLower(label))
		if p == "" {
			rest = append(rest, label)
			continue
		}
		if rank[p] > rank[best] {
			best = p
		}
	}
	if best == "" {
		best = plugin.PriorityMedium
	}
	return best, rest
}

func labelPriority(l string) plugin.Priority {
	match := func(names ...string) bool {
		for _, name := range names {
			if l == name || strings.HasSuffix(l, "::"+name) || strings.Contains(l, name) {
				return true
			}
		}
		return false
	}
	switch {
	case match("critical", "p0", "blocker"):
		return plugin.PriorityCritical
	case match("high", "p1", "urgent"):
		return plugin.PriorityHigh
	case match("low", "p3", "minor"):
		return plugin.PriorityLow
	default:
		return ""
	}
}

func typeFromLabels(labels []string) string {
	for _, label := range labels {
		switch strings.ToLower(strings.TrimPrefix(label, "type::")) {
		case "bug":
			return "bug"
		case "enhancement", "feature":
			return "feature"
		case "documentation", "docs":
			return "docs"
		}
	}
	return "task"
}
