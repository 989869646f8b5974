// Package plugin defines the contract between the local task tracker and
// external ticket systems. Each external system (GitHub, GitLab, Jira, HubSpot,
// Notion, Peakflo) provides one implementation, registered by kind.
package plugin

import "time"

// Priority is the local four-level task priority.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status is the local task status vocabulary.
type Status string

const (
	StatusNotStarted Status = "notstarted"
	StatusInProgress Status = "inprogress"
	StatusInReview   Status = "inreview"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Task is the local task record. Plugins only read it or submit partial
// updates; the store owns it.
type Task struct {
	ID           string
	ExternalID   string // remote system's immutable id; empty until linked
	SourceID     string
	Source       string // source display name
	Title        string
	Description  string
	Type         string
	Priority     Priority
	Status       Status
	Assignee     string
	DueDate      string // ISO date (e.g. "2026-03-15") or empty
	Labels       []string
	Attachments  []string
	OutputFields []OutputField
	Resolution   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskUpdate is a partial update. Nil fields are left untouched; in
// particular, a nil Status never clobbers a local state transition.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Type         *string
	Priority     *Priority
	Status       *Status
	Assignee     *string
	DueDate      *string
	Labels       *[]string
	Attachments  *[]string
	OutputFields *[]OutputField
	Resolution   *string
}

// TaskSource is a configured integration instance for one external system.
type TaskSource struct {
	ID           string
	Name         string
	Plugin       string // registered plugin kind
	Config       Config
	LastSyncedAt *time.Time // nil before the first successful sync
}

// Config is a plugin's key/value configuration, shaped by its ConfigSchema.
type Config map[string]string

// OutputField is a structured, typed value a task expects to be filled
// (by a human or an agent) before a completion action can run.
type OutputField struct {
	ID       string
	Name     string
	Type     string // text, number, checkbox, select, file
	Value    any    // nil until populated by a user or by extraction
	Options  []string
	Required bool
	Multiple bool
}

// SyncResult accumulates the outcome of one import run. It is never
// partial-aborted: per-record failures land in Errors and the run continues.
type SyncResult struct {
	Imported int
	Updated  int
	Errors   []string
}

// Action is a remote operation a source exposes (comment, close, approve...).
type Action struct {
	ID            string
	Label         string
	RequiresInput bool
}

// ActionResult is the outcome of ExecuteAction. On success TaskUpdate, when
// non-nil, names the local fields the caller should apply (e.g. closing a
// ticket sets the local status to Completed).
type ActionResult struct {
	Success    bool
	Error      string
	TaskUpdate *TaskUpdate
}

// User is an entry in a source's user directory.
type User struct {
	ID    string
	Name  string
	Email string
}

// Option is a selectable value for a select or dynamic-select config field.
type Option struct {
	Value string
	Label string
}
