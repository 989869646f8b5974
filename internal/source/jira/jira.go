package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

var _ plugin.Plugin = (*Source)(nil)
var _ plugin.UserDirectory = (*Source)(nil)
var _ plugin.Reassigner = (*Source)(nil)
var _ plugin.AuthChecker = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindJira, func() plugin.Plugin { return &Source{} })
}

// timeNow is swappable in tests.
var timeNow = time.Now

// Source is the Jira Cloud plugin.
type Source struct{}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindJira
}

// ConfigSchema returns the Jira configuration schema.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "base_url", Label: "Jira URL", Type: plugin.FieldText, Required: true},
		{Key: "email", Label: "Email", Type: plugin.FieldText, Required: true},
		{Key: "api_token", Label: "API Token", Type: plugin.FieldPassword, Required: true},
		{Key: "project", Label: "Project", Type: plugin.FieldDynamicSelect, Required: true, OptionsResolver: "projects"},
		{Key: "jql", Label: "Extra JQL Filter", Type: plugin.FieldText},
	}
}

// ResolveOptions resolves dynamic config choices. "projects" lists the
// instance's projects for the project dropdown.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	if resolver != "projects" {
		return nil
	}
	c, err := newClient(cfg)
	if err != nil {
		env.Log().Warn("jira options unavailable", "resolver", resolver, "error", err)
		return nil
	}
	projects, err := c.searchProjects(ctx)
	if err != nil {
		env.Log().Warn("jira options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	options := make([]plugin.Option, 0, len(projects))
	for _, p := range projects {
		options = append(options, plugin.Option{Value: p.Key, Label: p.Name})
	}
	return options
}

// ValidateConfig checks the config before any network call.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	return plugin.ValidateAgainstSchema(cfg, s.ConfigSchema())
}

// FieldMapping documents how Jira issue fields feed local task fields.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "key",
		"title":       "fields.summary",
		"description": "fields.description",
		"status":      "fields.status.statusCategory.key",
		"priority":    "fields.priority.name",
		"assignee":    "fields.assignee.displayName",
		"labels":      "fields.labels",
	}
}

// Actions returns the remote actions Jira issues support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "comment", Label: "Add Comment", RequiresInput: true},
		{ID: "done", Label: "Mark Done"},
	}
}

// ImportTasks fetches issues matching the window's JQL and upserts them as
// local tasks.
func (s *Source) ImportTasks(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*plugin.SyncResult, error) {
	src, err := env.Store.GetTaskSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	window := syncpkg.WindowFor(src, env.Lookback(sourceID), timeNow())
	run := syncpkg.Start(env.Store, src, "Jira: "+cfg["project"], window, env.Log())

	issues, err := c.searchAll(ctx, buildJQL(cfg, window))
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		run.Process(ctx, mapIssue(issue))
	}
	return run.Finish(ctx)
}

// buildJQL derives the search query from the window: open issues on a first
// sync, everything updated inside the lookback window afterwards.
func buildJQL(cfg plugin.Config, w syncpkg.Window) string {
	clauses := []string{fmt.Sprintf("project = %q", cfg["project"])}
	if w.Mode == syncpkg.ModeFull {
		clauses = append(clauses, "statusCategory != Done")
	} else {
		clauses = append(clauses, fmt.Sprintf("updated >= %q", w.Since.Format("2006-01-02 15:04")))
	}
	if extra := strings.TrimSpace(cfg["jql"]); extra != "" {
		clauses = append(clauses, "("+extra+")")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY updated ASC"
}

// ExportUpdate pushes local title, description, and label edits back to the
// issue. Best-effort: failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	c, err := newClient(cfg)
	if err != nil {
		env.Log().Warn("jira export skipped", "task", task.ID, "error", err)
		return
	}

	fields := &models.IssueFieldsScheme{}
	dirty := false
	for _, field := range changed {
		switch field {
		case "title":
			fields.Summary = task.Title
			dirty = true
		case "description":
			fields.Description = adfDocument(task.Description)
			dirty = true
		case "labels":
			fields.Labels = task.Labels
			dirty = true
		}
	}
	if !dirty {
		return
	}

	if err := c.updateFields(ctx, task.ExternalID, fields); err != nil {
		env.Log().Warn("jira export failed", "task", task.ID, "issue", task.ExternalID, "error", err)
	}
}

// ExecuteAction runs one declared action against the issue.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	switch actionID {
	case "comment":
		if strings.TrimSpace(input) == "" {
			return &plugin.ActionResult{Error: "comment body is empty"}, nil
		}
		if err := c.addComment(ctx, task.ExternalID, input); err != nil {
			return nil, err
		}
		return &plugin.ActionResult{Success: true}, nil

	case "done":
		if err := c.transitionToDone(ctx, task.ExternalID); err != nil {
			return nil, err
		}
		completed := plugin.StatusCompleted
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &completed},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", plugin.ErrUnknownAction, actionID)
}

// CheckAuth verifies the credentials by fetching the calling user.
func (s *Source) CheckAuth(ctx context.Context, cfg plugin.Config, env *plugin.Env) error {
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	return c.checkAuth(ctx)
}

// GetUsers queries the instance's user directory.
func (s *Source) GetUsers(ctx context.Context, cfg plugin.Config, env *plugin.Env) ([]plugin.User, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	found, err := c.searchUsers(ctx, "", 200)
	if err != nil {
		return nil, err
	}

	users := make([]plugin.User, 0, len(found))
	for _, u := range found {
		users = append(users, plugin.User{
			ID:    u.AccountID,
			Name:  u.DisplayName,
			Email: u.EmailAddress,
		})
	}
	return users, nil
}

// ReassignTask sets the issue's assignee. assignee is an Atlassian account
// id, as returned by GetUsers.
func (s *Source) ReassignTask(ctx context.Context, task *plugin.Task, assignee string, cfg plugin.Config, env *plugin.Env) error {
	c, err := newClient(cfg)
	if err != nil {
		return err
	}
	return c.assign(ctx, task.ExternalID, assignee)
}
