package github

import (
	"strconv"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

// timeNow is swappable in tests.
var timeNow = time.Now

// mapIssue translates one GitHub issue into local-task shape. GitHub has no
// native priority or type, so both are inferred from labels.
func mapIssue(issue *gogithub.Issue) *syncpkg.Record {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	priority, rest := priorityFromLabels(labels)

	rec := &syncpkg.Record{
		ExternalID:  strconv.Itoa(issue.GetNumber()),
		Title:       issue.GetTitle(),
		Description: issue.GetBody(),
		Type:        typeFromLabels(labels),
		Priority:    priority,
		Status:      statusFromState(issue.GetState()),
		Assignee:    issue.GetAssignee().GetLogin(),
		Labels:      rest,
	}
	if m := issue.GetMilestone(); m != nil && m.DueOn != nil {
		rec.DueDate = m.GetDueOn().Format(time.DateOnly)
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
// remainder. Priority-conventional labels feed the priority field instead of
// surviving as labels; the most urgent match wins. Unlabeled issues are
// medium.
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
			if l == name || strings.Contains(l, name) {
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
		switch strings.ToLower(label) {
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
