// Package gitlab syncs GitLab project issues into the local tracker using
// the official client-go library.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

var _ plugin.Plugin = (*Source)(nil)
var _ plugin.UserDirectory = (*Source)(nil)
var _ plugin.Reassigner = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindGitLab, func() plugin.Plugin { return &Source{} })
}

// Source is the GitLab issues plugin.
type Source struct{}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindGitLab
}

// ConfigSchema returns the GitLab configuration schema. The project is the
// full path ("group/subgroup/repo"), which the API accepts as a project id.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "token", Label: "Access Token", Type: plugin.FieldPassword, Required: true},
		{Key: "project", Label: "Project Path", Type: plugin.FieldText, Required: true},
		{Key: "base_url", Label: "Self-Hosted Base URL", Type: plugin.FieldText},
	}
}

// ResolveOptions resolves dynamic config choices. "projects" lists projects
// the token's user is a member of.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	if resolver != "projects" {
		return nil
	}
	client, err := s.newClient(cfg)
	if err != nil {
		env.Log().Warn("gitlab options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	projects, _, err := client.Projects.ListProjects(&gogitlab.ListProjectsOptions{
		Membership:  gogitlab.Ptr(true),
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}, gogitlab.WithContext(ctx))
	if err != nil {
		env.Log().Warn("gitlab options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	options := make([]plugin.Option, 0, len(projects))
	for _, p := range projects {
		options = append(options, plugin.Option{Value: p.PathWithNamespace, Label: p.NameWithNamespace})
	}
	return options
}

// ValidateConfig checks the config before any network call.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	return plugin.ValidateAgainstSchema(cfg, s.ConfigSchema())
}

// FieldMapping documents how GitLab issue fields feed local task fields.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "iid",
		"title":       "title",
		"description": "description",
		"status":      "state",
		"assignee":    "assignee.username",
		"labels":      "labels",
		"due_date":    "due_date",
	}
}

// Actions returns the remote actions GitLab issues support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "comment", Label: "Add Note", RequiresInput: true},
		{ID: "close", Label: "Close Issue"},
		{ID: "reopen", Label: "Reopen Issue"},
	}
}

// ImportTasks fetches project issues and upserts them as local tasks.
func (s *Source) ImportTasks(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*plugin.SyncResult, error) {
	src, err := env.Store.GetTaskSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	client, err := s.newClient(cfg)
	if err != nil {
		return nil, err
	}

	window := syncpkg.WindowFor(src, env.Lookback(sourceID), timeNow())
	run := syncpkg.Start(env.Store, src, "GitLab: "+cfg["project"], window, env.Log())

	opts := &gogitlab.ListProjectIssuesOptions{
		State:       gogitlab.Ptr("opened"),
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}
	if window.Mode == syncpkg.ModeIncremental {
		opts.State = nil
		since := window.Since
		opts.UpdatedAfter = &since
	}

	for {
		issues, resp, err := client.Issues.ListProjectIssues(cfg["project"], opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, mapError("list issues", resp, err)
		}
		for _, issue := range issues {
			run.Process(ctx, mapIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		if err := remote.Pace(ctx); err != nil {
			return nil, err
		}
	}
	return run.Finish(ctx)
}

// ExportUpdate pushes local title, description, and label edits back to the
// issue. Best-effort: failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	iid, err := issueIID(task)
	if err != nil {
		env.Log().Warn("gitlab export skipped", "task", task.ID, "error", err)
		return
	}
	client, err := s.newClient(cfg)
	if err != nil {
		env.Log().Warn("gitlab export skipped", "task", task.ID, "error", err)
		return
	}

	opts := &gogitlab.UpdateIssueOptions{}
	dirty := false
	for _, field := range changed {
		switch field {
		case "title":
			opts.Title = gogitlab.Ptr(task.Title)
			dirty = true
		case "description":
			opts.Description = gogitlab.Ptr(task.Description)
			dirty = true
		case "labels":
			labels := gogitlab.LabelOptions(task.Labels)
			opts.Labels = &labels
			dirty = true
		}
	}
	if !dirty {
		return
	}

	if _, _, err := client.Issues.UpdateIssue(cfg["project"], iid, opts, gogitlab.WithContext(ctx)); err != nil {
		env.Log().Warn("gitlab export failed", "task", task.ID, "issue", iid, "error", err)
	}
}

// ExecuteAction runs one declared action against the issue.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	iid, err := issueIID(task)
	if err != nil {
		return nil, err
	}
	client, err := s.newClient(cfg)
	if err != nil {
		return nil, err
	}

	switch actionID {
	case "comment":
		if strings.TrimSpace(input) == "" {
			return &plugin.ActionResult{Error: "note body is empty"}, nil
		}
		_, resp, err := client.Notes.CreateIssueNote(cfg["project"], iid,
			&gogitlab.CreateIssueNoteOptions{Body: gogitlab.Ptr(input)}, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, mapError("create note", resp, err)
		}
		return &plugin.ActionResult{Success: true}, nil

	case "close":
		if err := s.setState(ctx, client, cfg["project"], iid, "close"); err != nil {
			return nil, err
		}
		completed := plugin.StatusCompleted
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &completed},
		}, nil

	case "reopen":
		if err := s.setState(ctx, client, cfg["project"], iid, "reopen"); err != nil {
			return nil, err
		}
		reopened := plugin.StatusNotStarted
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &reopened},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", plugin.ErrUnknownAction, actionID)
}

func (s *Source) setState(ctx context.Context, client *gogitlab.Client, project string, iid int64, event string) error {
	opts := &gogitlab.UpdateIssueOptions{StateEvent: gogitlab.Ptr(event)}
	_, resp, err := client.Issues.UpdateIssue(project, iid, opts, gogitlab.WithContext(ctx))
	if err != nil {
		return mapError(event+" issue", resp, err)
	}
	return nil
}

// GetUsers lists the project's members, inherited members included.
func (s *Source) GetUsers(ctx context.Context, cfg plugin.Config, env *plugin.Env) ([]plugin.User, error) {
	client, err := s.newClient(cfg)
	if err != nil {
		return nil, err
	}

	var users []plugin.User
	opts := &gogitlab.ListProjectMembersOptions{ListOptions: gogitlab.ListOptions{PerPage: 100}}
	for {
		members, resp, err := client.ProjectMembers.ListAllProjectMembers(cfg["project"], opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, mapError("list members", resp, err)
		}
		for _, m := range members {
			users = append(users, plugin.User{
				ID:   m.Username,
				Name: m.Name,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return users, nil
}

// ReassignTask replaces the issue's assignees with the given username.
func (s *Source) ReassignTask(ctx context.Context, task *plugin.Task, assignee string, cfg plugin.Config, env *plugin.Env) error {
	iid, err := issueIID(task)
	if err != nil {
		return err
	}
	client, err := s.newClient(cfg)
	if err != nil {
		return err
	}

	users, resp, err := client.Users.ListUsers(&gogitlab.ListUsersOptions{
		Username: gogitlab.Ptr(assignee),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return mapError("lookup user", resp, err)
	}
	if len(users) == 0 {
		return fmt.Errorf("gitlab: no user named %q", assignee)
	}

	ids := []int64{users[0].ID}
	opts := &gogitlab.UpdateIssueOptions{AssigneeIDs: &ids}
	if _, resp, err := client.Issues.UpdateIssue(cfg["project"], iid, opts, gogitlab.WithContext(ctx)); err != nil {
		return mapError("reassign issue", resp, err)
	}
	return nil
}

// newClient builds an authenticated client, honoring a self-hosted base URL
// when configured.
func (s *Source) newClient(cfg plugin.Config) (*gogitlab.Client, error) {
	token := cfg["token"]
	if token == "" {
		return nil, fmt.Errorf("gitlab: %w: no token configured", plugin.ErrAuthFailed)
	}

	if base := cfg["base_url"]; base != "" {
		base = strings.TrimSuffix(base, "/")
		client, err := gogitlab.NewClient(token, gogitlab.WithBaseURL(base+"/api/v4"))
		if err != nil {
			return nil, fmt.Errorf("create gitlab client: %w", err)
		}
		return client, nil
	}
	client, err := gogitlab.NewClient(token)
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}
	return client, nil
}

func issueIID(task *plugin.Task) (int64, error) {
	iid, err := strconv.ParseInt(task.ExternalID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("task %s has no issue iid: %q", task.ID, task.ExternalID)
	}
	return iid, nil
}

// mapError translates API failures into the shared taxonomy using the
// response status.
func mapError(op string, resp *gogitlab.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("gitlab %s: %w", op, plugin.ErrAuthFailed)
		case http.StatusNotFound:
			return fmt.Errorf("gitlab %s: %w", op, remote.ErrNotFound)
		case http.StatusTooManyRequests:
			return fmt.Errorf("gitlab %s: %w", op, plugin.ErrRateLimited)
		}
	}
	return fmt.Errorf("gitlab %s: %w", op, err)
}
