// Package jira syncs Jira Cloud issues into the local tracker using the
// go-atlassian v3 API client.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
)

// client wraps the go-atlassian Jira v3 client with the search, comment, and
// transition calls the plugin needs.
type client struct {
	jira *v3.Client
}

// newClient creates an authenticated Jira Cloud client from the source
// config (base_url, email, api_token).
func newClient(cfg plugin.Config) (*client, error) {
	base := strings.TrimRight(cfg["base_url"], "/")
	if base == "" {
		return nil, fmt.Errorf("jira base URL is required")
	}

	jc, err := v3.New(&http.Client{Timeout: 30 * time.Second}, base)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	jc.Auth.SetBasicAuth(cfg["email"], cfg["api_token"])
	jc.Auth.SetUserAgent("tasksync/1.0")

	return &client{jira: jc}, nil
}

// searchFields are the issue fields requested in search results. Keeping the
// list explicit avoids fetching unnecessary data.
var searchFields = []string{
	"summary",
	"description",
	"issuetype",
	"status",
	"priority",
	"labels",
	"assignee",
	"created",
	"updated",
}

// searchAll fetches every issue matching the JQL query, paging with the
// next-page token and pausing between pages.
func (c *client) searchAll(ctx context.Context, jql string) ([]*models.IssueScheme, error) {
	var all []*models.IssueScheme
	nextPageToken := ""

	for {
		result, resp, err := c.jira.Issue.Search.SearchJQL(ctx, jql, searchFields, nil, 50, nextPageToken)
		if err != nil {
			return nil, mapError("search", resp, err)
		}

		all = append(all, result.Issues...)

		if result.NextPageToken == "" || len(result.Issues) == 0 {
			break
		}
		nextPageToken = result.NextPageToken
		if err := remote.Pace(ctx); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// checkAuth verifies the credentials by fetching the calling user.
func (c *client) checkAuth(ctx context.Context) error {
	_, resp, err := c.jira.MySelf.Details(ctx, nil)
	if err != nil {
		return mapError("auth check", resp, err)
	}
	return nil
}

// addComment posts a plain-text comment, wrapped in the minimal ADF document
// the v3 API requires.
func (c *client) addComment(ctx context.Context, issueKey, text string) error {
	payload := &models.CommentPayloadScheme{Body: adfDocument(text)}
	_, resp, err := c.jira.Issue.Comment.Add(ctx, issueKey, payload, nil)
	if err != nil {
		return mapError("add comment", resp, err)
	}
	return nil
}

// transitionToDone finds the first transition whose target status category is
// "done" and applies it.
func (c *client) transitionToDone(ctx context.Context, issueKey string) error {
	transitions, resp, err := c.jira.Issue.Transitions(ctx, issueKey)
	if err != nil {
		return mapError("list transitions", resp, err)
	}

	for _, t := range transitions.Transitions {
		if t.To == nil || t.To.StatusCategory == nil || t.To.StatusCategory.Key != "done" {
			continue
		}
		if resp, err := c.jira.Issue.Move(ctx, issueKey, t.ID, nil); err != nil {
			return mapError("transition", resp, err)
		}
		return nil
	}
	return fmt.Errorf("issue %s has no transition to a done status", issueKey)
}

// updateFields pushes summary, description, and label edits to the issue.
func (c *client) updateFields(ctx context.Context, issueKey string, fields *models.IssueFieldsScheme) error {
	payload := &models.IssueScheme{Fields: fields}
	resp, err := c.jira.Issue.Update(ctx, issueKey, true, payload, nil, nil)
	if err != nil {
		return mapError("update issue", resp, err)
	}
	return nil
}

// assign sets the issue's assignee by account id.
func (c *client) assign(ctx context.Context, issueKey, accountID string) error {
	resp, err := c.jira.Issue.Assign(ctx, issueKey, accountID)
	if err != nil {
		return mapError("assign", resp, err)
	}
	return nil
}

// searchUsers queries the user directory.
func (c *client) searchUsers(ctx context.Context, query string, max int) ([]*models.UserScheme, error) {
	users, resp, err := c.jira.User.Search.Do(ctx, "", query, 0, max)
	if err != nil {
		return nil, mapError("search users", resp, err)
	}
	return users, nil
}

// searchProjects lists projects for the project dropdown.
func (c *client) searchProjects(ctx context.Context) ([]*models.ProjectScheme, error) {
	result, resp, err := c.jira.Project.Search(ctx, &models.ProjectSearchOptionsScheme{
		OrderBy: "name",
	}, 0, 100)
	if err != nil {
		return nil, mapError("search projects", resp, err)
	}
	return result.Values, nil
}

// mapError translates API failures into the shared taxonomy using the
// response status.
func mapError(op string, resp *models.ResponseScheme, err error) error {
	if resp != nil {
		switch resp.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("jira %s: %w", op, plugin.ErrAuthFailed)
		case http.StatusNotFound:
			return fmt.Errorf("jira %s: %w", op, remote.ErrNotFound)
		case http.StatusTooManyRequests:
			return fmt.Errorf("jira %s: %w", op, plugin.ErrRateLimited)
		}
	}
	return fmt.Errorf("jira %s: %w", op, err)
}
