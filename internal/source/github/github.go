// Package github syncs GitHub issues into the local tracker using the
// go-github client. Pull requests are ignored; only issues become tasks.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

var _ plugin.Plugin = (*Source)(nil)
var _ plugin.UserDirectory = (*Source)(nil)
var _ plugin.Reassigner = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindGitHub, func() plugin.Plugin { return &Source{} })
}

// Source is the GitHub issues plugin.
type Source struct{}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindGitHub
}

// ConfigSchema returns the GitHub configuration schema.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "token", Label: "Personal Access Token", Type: plugin.FieldPassword, Required: true},
		{Key: "owner", Label: "Owner", Type: plugin.FieldText, Required: true},
		{Key: "repo", Label: "Repository", Type: plugin.FieldDynamicSelect, Required: true, OptionsResolver: "repos"},
		{Key: "base_url", Label: "Enterprise Base URL", Type: plugin.FieldText},
	}
}

// ResolveOptions resolves dynamic config choices. "repos" lists the owner's
// repositories for the repo dropdown.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	if resolver != "repos" || cfg["owner"] == "" {
		return nil
	}
	client, err := s.newClient(cfg)
	if err != nil {
		env.Log().Warn("github options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	var options []plugin.Option
	opts := &gogithub.RepositoryListByUserOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}
	for {
		repos, resp, err := client.Repositories.ListByUser(ctx, cfg["owner"], opts)
		if err != nil {
			env.Log().Warn("github options unavailable", "resolver", resolver, "error", err)
			return nil
		}
		for _, r := range repos {
			options = append(options, plugin.Option{Value: r.GetName(), Label: r.GetFullName()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return options
}

// ValidateConfig checks the config before any network call.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	return plugin.ValidateAgainstSchema(cfg, s.ConfigSchema())
}

// FieldMapping documents how GitHub issue fields feed local task fields.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "number",
		"title":       "title",
		"description": "body",
		"status":      "state",
		"assignee":    "assignee.login",
		"labels":      "labels.#.name",
		"due_date":    "milestone.due_on",
	}
}

// Actions returns the remote actions GitHub issues support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "comment", Label: "Add Comment", RequiresInput: true},
		{ID: "close", Label: "Close Issue"},
		{ID: "reopen", Label: "Reopen Issue"},
	}
}

// ImportTasks fetches issues and upserts them as local tasks. A first sync
// fetches open issues only; incremental syncs fetch anything updated inside
// the lookback window, closed issues included.
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
	run := syncpkg.Start(env.Store, src, "GitHub: "+cfg["owner"]+"/"+cfg["repo"], window, env.Log())

	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if window.Mode == syncpkg.ModeIncremental {
		opts.State = "all"
		opts.Since = window.Since
	}

	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, cfg["owner"], cfg["repo"], opts)
		if err != nil {
			return nil, mapError("list issues", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			run.Process(ctx, mapIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
		if err := remote.Pace(ctx); err != nil {
			return nil, err
		}
	}
	return run.Finish(ctx)
}

// ExportUpdate pushes local title, description, and label edits back to the
// issue. Best-effort: failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	number, err := issueNumber(task)
	if err != nil {
		env.Log().Warn("github export skipped", "task", task.ID, "error", err)
		return
	}
	client, err := s.newClient(cfg)
	if err != nil {
		env.Log().Warn("github export skipped", "task", task.ID, "error", err)
		return
	}

	req := &gogithub.IssueRequest{}
	dirty := false
	for _, field := range changed {
		switch field {
		case "title":
			req.Title = gogithub.Ptr(task.Title)
			dirty = true
		case "description":
			req.Body = gogithub.Ptr(task.Description)
			dirty = true
		case "labels":
			labels := task.Labels
			req.Labels = &labels
			dirty = true
		}
	}
	if !dirty {
		return
	}

	if _, _, err := client.Issues.Edit(ctx, cfg["owner"], cfg["repo"], number, req); err != nil {
		env.Log().Warn("github export failed", "task", task.ID, "issue", number, "error", err)
	}
}

// ExecuteAction runs one declared action against the issue.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	number, err := issueNumber(task)
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
			return &plugin.ActionResult{Error: "comment body is empty"}, nil
		}
		comment := &gogithub.IssueComment{Body: gogithub.Ptr(input)}
		if _, _, err := client.Issues.CreateComment(ctx, cfg["owner"], cfg["repo"], number, comment); err != nil {
			return nil, mapError("create comment", err)
		}
		return &plugin.ActionResult{Success: true}, nil

	case "close":
		req := &gogithub.IssueRequest{State: gogithub.Ptr("closed")}
		if _, _, err := client.Issues.Edit(ctx, cfg["owner"], cfg["repo"], number, req); err != nil {
			return nil, mapError("close issue", err)
		}
		completed := plugin.StatusCompleted
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &completed},
		}, nil

	case "reopen":
		req := &gogithub.IssueRequest{State: gogithub.Ptr("open")}
		if _, _, err := client.Issues.Edit(ctx, cfg["owner"], cfg["repo"], number, req); err != nil {
			return nil, mapError("reopen issue", err)
		}
		reopened := plugin.StatusNotStarted
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &reopened},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", plugin.ErrUnknownAction, actionID)
}

// GetUsers lists the repository's collaborators.
func (s *Source) GetUsers(ctx context.Context, cfg plugin.Config, env *plugin.Env) ([]plugin.User, error) {
	client, err := s.newClient(cfg)
	if err != nil {
		return nil, err
	}

	var users []plugin.User
	opts := &gogithub.ListCollaboratorsOptions{ListOptions: gogithub.ListOptions{PerPage: 100}}
	for {
		collaborators, resp, err := client.Repositories.ListCollaborators(ctx, cfg["owner"], cfg["repo"], opts)
		if err != nil {
			return nil, mapError("list collaborators", err)
		}
		for _, u := range collaborators {
			users = append(users, plugin.User{
				ID:    u.GetLogin(),
				Name:  u.GetLogin(),
				Email: u.GetEmail(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return users, nil
}

// ReassignTask replaces the issue's assignees with the given login.
func (s *Source) ReassignTask(ctx context.Context, task *plugin.Task, assignee string, cfg plugin.Config, env *plugin.Env) error {
	number, err := issueNumber(task)
	if err != nil {
		return err
	}
	client, err := s.newClient(cfg)
	if err != nil {
		return err
	}

	assignees := []string{assignee}
	req := &gogithub.IssueRequest{Assignees: &assignees}
	if _, _, err := client.Issues.Edit(ctx, cfg["owner"], cfg["repo"], number, req); err != nil {
		return mapError("reassign issue", err)
	}
	return nil
}

// newClient builds an authenticated go-github client, honoring an enterprise
// base URL when configured.
func (s *Source) newClient(cfg plugin.Config) (*gogithub.Client, error) {
	token := cfg["token"]
	if token == "" {
		return nil, fmt.Errorf("github: %w: no token configured", plugin.ErrAuthFailed)
	}

	httpClient := &http.Client{
		Transport: &bearerTransport{token: token},
	}
	client := gogithub.NewClient(httpClient)

	if base := cfg["base_url"]; base != "" {
		base = strings.TrimSuffix(base, "/")
		var err error
		client.BaseURL, err = client.BaseURL.Parse(base + "/api/v3/")
		if err != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", base, err)
		}
	}
	return client, nil
}

// bearerTransport adds the Authorization header to every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

func issueNumber(task *plugin.Task) (int, error) {
	number, err := strconv.Atoi(task.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("task %s has no issue number: %q", task.ID, task.ExternalID)
	}
	return number, nil
}

// mapError translates go-github errors into the shared taxonomy so callers
// can branch with errors.Is.
func mapError(op string, err error) error {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("github %s: %w", op, plugin.ErrRateLimited)
	}
	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("github %s: %w", op, plugin.ErrAuthFailed)
		case http.StatusNotFound:
			return fmt.Errorf("github %s: %w", op, remote.ErrNotFound)
		}
	}
	return fmt.Errorf("github %s: %w", op, err)
}
