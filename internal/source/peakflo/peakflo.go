// Package peakflo syncs Peakflo workflow tasks into the local tracker over
// its REST API. Peakflo models completion as a structured payload: each
// remote task carries an output schema whose fields must be filled before
// the complete action can run.
package peakflo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
	"github.com/randalmurphal/tasksync/internal/toolcall"
)

var _ plugin.Plugin = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindPeakflo, func() plugin.Plugin { return &Source{} })
}

// timeNow is swappable in tests.
var timeNow = time.Now

const defaultBaseURL = "https://api.peakflo.co"

// Source is the Peakflo workflow plugin.
type Source struct{}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindPeakflo
}

// ConfigSchema returns the Peakflo configuration schema.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "token", Label: "API Token", Type: plugin.FieldPassword, Required: true},
		{Key: "workflow", Label: "Workflow", Type: plugin.FieldText},
		{Key: "base_url", Label: "Base URL", Type: plugin.FieldText},
	}
}

// ResolveOptions has no dynamic fields for Peakflo.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	return nil
}

// ValidateConfig checks the config before any network call.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	return plugin.ValidateAgainstSchema(cfg, s.ConfigSchema())
}

// FieldMapping documents how Peakflo task fields feed local task fields.
// Older API versions expose "id" instead of "taskId"; both are accepted.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "taskId|id",
		"title":       "title",
		"description": "description",
		"status":      "status",
		"priority":    "priority",
		"assignee":    "assignee.name|assignee.email",
		"due_date":    "dueDate",
		"resolution":  "resolution",
	}
}

// Actions returns the remote actions Peakflo tasks support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "approve", Label: "Approve"},
		{ID: "reject", Label: "Reject", RequiresInput: true},
		{ID: "complete", Label: "Complete with Outputs"},
	}
}

// remoteTask is the Peakflo task record.
type remoteTask struct {
	TaskID       string        `json:"taskId"`
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       string        `json:"status"`
	Priority     string        `json:"priority"`
	DueDate      string        `json:"dueDate"`
	Resolution   string        `json:"resolution"`
	Assignee     *remoteUser   `json:"assignee"`
	OutputSchema []remoteField `json:"outputSchema"`
}

type remoteUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type remoteField struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
	Required bool     `json:"required"`
	Multiple bool     `json:"multiple"`
}

// ImportTasks fetches workflow tasks and upserts them as local tasks. The
// remote output schema becomes the task's output fields; values already
// populated locally survive re-import.
func (s *Source) ImportTasks(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*plugin.SyncResult, error) {
	src, err := env.Store.GetTaskSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	rest := s.newClient(cfg, env)

	window := syncpkg.WindowFor(src, env.Lookback(sourceID), timeNow())
	run := syncpkg.Start(env.Store, src, "Peakflo", window, env.Log())

	query := url.Values{"limit": {"100"}}
	if wf := cfg["workflow"]; wf != "" {
		query.Set("workflow", wf)
	}
	if window.Mode == syncpkg.ModeFull {
		query.Set("status", "open")
	} else {
		query.Set("updatedAfter", window.Since.UTC().Format(time.RFC3339))
	}

	cursor := ""
	for {
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var resp struct {
			Tasks      []json.RawMessage `json:"tasks"`
			NextCursor string            `json:"nextCursor"`
		}
		if err := rest.GetJSON(ctx, "/v1/tasks", query, &resp); err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}

		for _, raw := range resp.Tasks {
			rec, err := mapTask(raw)
			if err != nil {
				id, title := recordIdentity(raw)
				run.Fail(id, title, err)
				continue
			}
			run.Process(ctx, rec)
		}

		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
		if err := rest.PageDelay(ctx); err != nil {
			return nil, err
		}
	}
	return run.Finish(ctx)
}

// recordIdentity pulls whatever identifying fields survived a failed decode
// so the reported error names the record. When nothing parses, a snippet of
// the raw payload stands in for the title.
func recordIdentity(raw json.RawMessage) (externalID, title string) {
	var head struct {
		TaskID string `json:"taskId"`
		ID     string `json:"id"`
		Title  string `json:"title"`
	}
	_ = json.Unmarshal(raw, &head)

	externalID = head.TaskID
	if externalID == "" {
		externalID = head.ID
	}
	title = head.Title
	if externalID == "" && title == "" {
		s := strings.TrimSpace(string(raw))
		if len(s) > 60 {
			s = s[:60] + "..."
		}
		title = s
	}
	return externalID, title
}

// mapTask translates one raw task into local-task shape.
func mapTask(raw json.RawMessage) (*syncpkg.Record, error) {
	var t remoteTask
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}

	externalID := t.TaskID
	if externalID == "" {
		externalID = t.ID
	}
	if externalID == "" {
		return nil, fmt.Errorf("task has neither taskId nor id")
	}

	rec := &syncpkg.Record{
		ExternalID:  externalID,
		Title:       t.Title,
		Description: t.Description,
		Type:        "approval",
		Priority:    mapPriority(t.Priority),
		Status:      mapStatus(t.Status),
		DueDate:     t.DueDate,
		Resolution:  t.Resolution,
	}
	if t.Assignee != nil {
		rec.Assignee = t.Assignee.Name
		if rec.Assignee == "" {
			rec.Assignee = t.Assignee.Email
		}
	}
	for _, f := range t.OutputSchema {
		rec.OutputFields = append(rec.OutputFields, plugin.OutputField{
			ID:       f.ID,
			Name:     f.Name,
			Type:     f.Type,
			Options:  f.Options,
			Required: f.Required,
			Multiple: f.Multiple,
		})
	}
	return rec, nil
}

func mapPriority(p string) plugin.Priority {
	switch strings.ToLower(p) {
	case "critical", "urgent":
		return plugin.PriorityCritical
	case "high":
		return plugin.PriorityHigh
	case "low":
		return plugin.PriorityLow
	default:
		return plugin.PriorityMedium
	}
}

func mapStatus(status string) plugin.Status {
	switch strings.ToLower(status) {
	case "in_progress":
		return plugin.StatusInProgress
	case "pending_approval":
		return plugin.StatusInReview
	case "waiting":
		return plugin.StatusWaiting
	case "approved", "completed":
		return plugin.StatusCompleted
	case "rejected", "cancelled":
		return plugin.StatusCancelled
	default:
		return plugin.StatusNotStarted
	}
}

// ExportUpdate pushes local title and description edits back to the task.
// Best-effort: failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	body := map[string]string{}
	for _, field := range changed {
		switch field {
		case "title":
			body["title"] = task.Title
		case "description":
			body["description"] = task.Description
		case "due_date":
			body["dueDate"] = task.DueDate
		}
	}
	if len(body) == 0 {
		return
	}

	rest := s.newClient(cfg, env)
	if err := rest.PatchJSON(ctx, "/v1/tasks/"+url.PathEscape(task.ExternalID), body, nil); err != nil {
		env.Log().Warn("peakflo export failed", "task", task.ID, "remote", task.ExternalID, "error", err)
	}
}

// ExecuteAction runs one declared action. Peakflo returns application-level
// errors inside 2xx responses ({"error":"..."}); these surface as action
// failures, not transport errors.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	body := map[string]any{"action": actionID}

	switch actionID {
	case "approve":
		// no payload beyond the action itself

	case "reject":
		if strings.TrimSpace(input) == "" {
			return &plugin.ActionResult{Error: "rejection reason is required"}, nil
		}
		body["comment"] = input

	case "complete":
		outputs, missing := outputPayload(task.OutputFields)
		if len(missing) > 0 {
			return &plugin.ActionResult{
				Error: "required output fields not filled: " + strings.Join(missing, ", "),
			}, nil
		}
		body["outputs"] = outputs

	default:
		return nil, fmt.Errorf("%w: %q", plugin.ErrUnknownAction, actionID)
	}

	rest := s.newClient(cfg, env)
	var raw json.RawMessage
	err := rest.PostJSON(ctx, "/v1/tasks/"+url.PathEscape(task.ExternalID)+"/actions", body, &raw)
	if err != nil {
		return &plugin.ActionResult{Error: err.Error()}, nil
	}
	if msg := toolcall.EmbeddedError(string(raw)); msg != "" {
		return &plugin.ActionResult{Error: msg}, nil
	}

	update := &plugin.TaskUpdate{}
	switch actionID {
	case "approve":
		completed, resolution := plugin.StatusCompleted, "approved"
		update.Status, update.Resolution = &completed, &resolution
	case "reject":
		cancelled, resolution := plugin.StatusCancelled, "rejected"
		update.Status, update.Resolution = &cancelled, &resolution
	case "complete":
		completed, resolution := plugin.StatusCompleted, "completed"
		update.Status, update.Resolution = &completed, &resolution
	}
	return &plugin.ActionResult{Success: true, TaskUpdate: update}, nil
}

// outputPayload builds the completion payload from filled output fields and
// reports any required fields still lacking values.
func outputPayload(fields []plugin.OutputField) (map[string]any, []string) {
	outputs := make(map[string]any)
	var missing []string
	for _, f := range fields {
		if f.Value == nil {
			if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		outputs[f.ID] = f.Value
	}
	return outputs, missing
}

func (s *Source) newClient(cfg plugin.Config, env *plugin.Env) *remote.Client {
	base := cfg["base_url"]
	if base == "" {
		base = defaultBaseURL
	}
	return remote.New(base, cfg["token"], remote.WithLogger(env.Log()))
}
