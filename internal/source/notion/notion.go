// Package notion syncs pages of a Notion database into the local tracker.
// Notion is reached through an MCP tool server rather than a direct REST
// client, so every operation is a named tool call whose JSON payload is
// unwrapped and parsed with gjson.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
	"github.com/randalmurphal/tasksync/internal/toolcall"
)

var _ plugin.Plugin = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindNotion, func() plugin.Plugin {
		return &Source{call: &toolcall.MCPCaller{}}
	})
}

// timeNow is swappable in tests.
var timeNow = time.Now

// defaultCommand launches the reference Notion MCP server over stdio.
var defaultCommand = []string{"npx", "-y", "@notionhq/notion-mcp-server"}

// Source is the Notion database plugin.
type Source struct {
	call toolcall.Caller
}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindNotion
}

// ConfigSchema returns the Notion configuration schema.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "token", Label: "Integration Token", Type: plugin.FieldPassword, Required: true},
		{Key: "database_id", Label: "Database", Type: plugin.FieldDynamicSelect, Required: true, OptionsResolver: "databases"},
		{Key: "transport", Label: "Server Transport", Type: plugin.FieldSelect, Options: []plugin.Option{
			{Value: "stdio", Label: "Local (stdio)"},
			{Value: "http", Label: "Streamable HTTP"},
			{Value: "sse", Label: "SSE"},
		}},
		{Key: "url", Label: "Server URL", Type: plugin.FieldText},
	}
}

// ResolveOptions resolves dynamic config choices. "databases" searches the
// workspace for databases the integration can see.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	if resolver != "databases" {
		return nil
	}
	payload, err := s.invoke(ctx, cfg, "API-post-search", map[string]any{
		"filter": map[string]string{"property": "object", "value": "database"},
	})
	if err != nil {
		env.Log().Warn("notion options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	var options []plugin.Option
	gjson.Get(payload, "results").ForEach(func(_, db gjson.Result) bool {
		options = append(options, plugin.Option{
			Value: db.Get("id").String(),
			Label: db.Get("title.0.plain_text").String(),
		})
		return true
	})
	return options
}

// ValidateConfig checks the config before any tool call. Remote transports
// additionally need the server URL.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	if err := plugin.ValidateAgainstSchema(cfg, s.ConfigSchema()); err != nil {
		return err
	}
	if t := cfg["transport"]; (t == "http" || t == "sse") && cfg["url"] == "" {
		return fmt.Errorf("transport %q requires a server URL", t)
	}
	return nil
}

// FieldMapping documents how Notion page properties feed local task fields.
// Property names are workspace-defined, so each local field lists the
// conventional alternatives tried in order.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "id",
		"title":       "properties.Name.title.0.plain_text|properties.Title.title.0.plain_text|properties.Task.title.0.plain_text",
		"status":      "properties.Status.status.name|properties.Status.select.name",
		"priority":    "properties.Priority.select.name",
		"assignee":    "properties.Assignee.people.0.name|properties.Owner.people.0.name",
		"due_date":    "properties.Due.date.start|properties.Deadline.date.start",
	}
}

// Actions returns the remote actions Notion pages support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "comment", Label: "Add Comment", RequiresInput: true},
		{ID: "archive", Label: "Archive Page"},
	}
}

// ImportTasks queries the configured database and upserts its pages as local
// tasks. Incremental syncs filter on last_edited_time.
func (s *Source) ImportTasks(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*plugin.SyncResult, error) {
	src, err := env.Store.GetTaskSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	window := syncpkg.WindowFor(src, env.Lookback(sourceID), timeNow())
	run := syncpkg.Start(env.Store, src, "Notion", window, env.Log())
	mapping := s.FieldMapping(cfg)

	cursor := ""
	for {
		args := map[string]any{
			"database_id": cfg["database_id"],
			"page_size":   100,
		}
		if cursor != "" {
			args["start_cursor"] = cursor
		}
		if window.Mode == syncpkg.ModeIncremental {
			args["filter"] = map[string]any{
				"timestamp":        "last_edited_time",
				"last_edited_time": map[string]string{"on_or_after": window.Since.UTC().Format(time.RFC3339)},
			}
		}

		payload, err := s.invoke(ctx, cfg, "API-post-database-query", args)
		if err != nil {
			return nil, err
		}

		gjson.Get(payload, "results").ForEach(func(_, page gjson.Result) bool {
			run.Process(ctx, mapPage(page.Raw, mapping))
			return true
		})

		if !gjson.Get(payload, "has_more").Bool() {
			break
		}
		cursor = gjson.Get(payload, "next_cursor").String()
		if cursor == "" {
			break
		}
		if err := remote.Pace(ctx); err != nil {
			return nil, err
		}
	}
	return run.Finish(ctx)
}

// ExportUpdate pushes local title edits back to the page. Other fields map
// onto workspace-defined properties and are not exported. Best-effort:
// failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	titleChanged := false
	for _, field := range changed {
		if field == "title" {
			titleChanged = true
		}
	}
	if !titleChanged {
		return
	}

	_, err := s.invoke(ctx, cfg, "API-patch-page", map[string]any{
		"page_id": task.ExternalID,
		"properties": map[string]any{
			"title": map[string]any{
				"title": []map[string]any{{"text": map[string]string{"content": task.Title}}},
			},
		},
	})
	if err != nil {
		env.Log().Warn("notion export failed", "task", task.ID, "page", task.ExternalID, "error", err)
	}
}

// ExecuteAction runs one declared action against the page.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	switch actionID {
	case "comment":
		if strings.TrimSpace(input) == "" {
			return &plugin.ActionResult{Error: "comment body is empty"}, nil
		}
		_, err := s.invoke(ctx, cfg, "API-create-a-comment", map[string]any{
			"parent":    map[string]string{"page_id": task.ExternalID},
			"rich_text": []map[string]any{{"text": map[string]string{"content": input}}},
		})
		if err != nil {
			return nil, err
		}
		return &plugin.ActionResult{Success: true}, nil

	case "archive":
		_, err := s.invoke(ctx, cfg, "API-patch-page", map[string]any{
			"page_id":  task.ExternalID,
			"archived": true,
		})
		if err != nil {
			return nil, err
		}
		cancelled := plugin.StatusCancelled
		return &plugin.ActionResult{
			Success:    true,
			TaskUpdate: &plugin.TaskUpdate{Status: &cancelled},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", plugin.ErrUnknownAction, actionID)
}

// invoke calls one tool and unwraps the payload, surfacing both tool-level
// and embedded application errors.
func (s *Source) invoke(ctx context.Context, cfg plugin.Config, tool string, args map[string]any) (string, error) {
	result, err := s.call.CallTool(ctx, server(cfg), tool, args)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("notion %s: %s", tool, result.Error)
	}

	payload := toolcall.UnwrapEnvelope(result.Result)
	if msg := toolcall.EmbeddedError(payload); msg != "" {
		return "", fmt.Errorf("notion %s: %s", tool, msg)
	}
	return payload, nil
}

// server builds the tool server description from the source config.
func server(cfg plugin.Config) toolcall.Server {
	transport := toolcall.Transport(cfg["transport"])
	if transport == "" {
		transport = toolcall.TransportStdio
	}
	srv := toolcall.Server{
		Name:      "notion",
		Transport: transport,
		URL:       cfg["url"],
	}

	if transport == toolcall.TransportStdio {
		srv.Command = defaultCommand[0]
		srv.Args = defaultCommand[1:]
		headers, _ := json.Marshal(map[string]string{
			"Authorization":  "Bearer " + cfg["token"],
			"Notion-Version": "2022-06-28",
		})
		srv.Env = map[string]string{"OPENAPI_MCP_HEADERS": string(headers)}
		return srv
	}

	srv.Headers = map[string]string{"Authorization": "Bearer " + cfg["token"]}
	return srv
}
