package hubspot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

var _ plugin.Plugin = (*Source)(nil)
var _ plugin.UserDirectory = (*Source)(nil)
var _ plugin.Reassigner = (*Source)(nil)

func init() {
	plugin.Register(plugin.KindHubSpot, func() plugin.Plugin {
		return &Source{cache: newMetadataCache()}
	})
}

// timeNow is swappable in tests.
var timeNow = time.Now

// Source is the HubSpot tickets plugin. It keeps a per-instance pipeline
// metadata cache so stage state resolution does not hit the API per ticket.
type Source struct {
	cache *metadataCache
}

// Kind returns the registered plugin kind.
func (s *Source) Kind() plugin.Kind {
	return plugin.KindHubSpot
}

// ConfigSchema returns the HubSpot configuration schema. Two auth modes are
// supported: a private app token pasted into the config, or a delegated
// OAuth token supplied by the token provider.
func (s *Source) ConfigSchema() []plugin.ConfigField {
	return []plugin.ConfigField{
		{Key: "auth_mode", Label: "Authentication", Type: plugin.FieldSelect, Required: true, Options: []plugin.Option{
			{Value: "token", Label: "Private App Token"},
			{Value: "oauth", Label: "OAuth"},
		}},
		{Key: "token", Label: "Access Token", Type: plugin.FieldPassword, Required: true, DependsOn: "auth_mode", DependsValue: "token"},
		{Key: "pipeline", Label: "Ticket Pipeline", Type: plugin.FieldDynamicSelect, OptionsResolver: "pipelines"},
	}
}

// ResolveOptions resolves dynamic config choices. "pipelines" lists the
// portal's ticket pipelines.
func (s *Source) ResolveOptions(ctx context.Context, resolver string, cfg plugin.Config, env *plugin.Env) []plugin.Option {
	if resolver != "pipelines" {
		return nil
	}
	c, err := s.newClient(ctx, "", cfg, env)
	if err != nil {
		env.Log().Warn("hubspot options unavailable", "resolver", resolver, "error", err)
		return nil
	}
	pipelines, err := c.listPipelines(ctx)
	if err != nil {
		env.Log().Warn("hubspot options unavailable", "resolver", resolver, "error", err)
		return nil
	}

	options := make([]plugin.Option, 0, len(pipelines))
	for _, p := range pipelines {
		options = append(options, plugin.Option{Value: p.ID, Label: p.Label})
	}
	return options
}

// ValidateConfig checks the config before any network call. Both auth modes
// are verified: token mode requires the token field, oauth mode defers to
// the token provider at call time.
func (s *Source) ValidateConfig(cfg plugin.Config) error {
	return plugin.ValidateAgainstSchema(cfg, s.ConfigSchema())
}

// FieldMapping documents how HubSpot ticket fields feed local task fields.
func (s *Source) FieldMapping(cfg plugin.Config) plugin.FieldMapping {
	return plugin.FieldMapping{
		"external_id": "id",
		"title":       "properties.subject",
		"description": "properties.content",
		"priority":    "properties.hs_ticket_priority",
		"status":      "properties.hs_pipeline_stage",
		"assignee":    "properties.hubspot_owner_id",
	}
}

// Actions returns the remote actions HubSpot tickets support.
func (s *Source) Actions(cfg plugin.Config) []plugin.Action {
	return []plugin.Action{
		{ID: "add_note", Label: "Add Note", RequiresInput: true},
		{ID: "close", Label: "Close Ticket"},
	}
}

// ImportTasks fetches tickets and upserts them as local tasks. A first sync
// fetches the configured pipeline's open tickets; incremental syncs fetch
// anything modified inside the lookback window.
func (s *Source) ImportTasks(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*plugin.SyncResult, error) {
	src, err := env.Store.GetTaskSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	c, err := s.newClient(ctx, sourceID, cfg, env)
	if err != nil {
		return nil, err
	}

	// Every sync starts from fresh pipeline metadata: stages get renamed and
	// reordered in the portal without notice.
	meta, err := s.cache.refresh(ctx, sourceID, c)
	if err != nil {
		return nil, err
	}

	window := syncpkg.WindowFor(src, env.Lookback(sourceID), timeNow())
	run := syncpkg.Start(env.Store, src, "HubSpot", window, env.Log())

	var filters []filter
	if p := cfg["pipeline"]; p != "" {
		filters = append(filters, filter{PropertyName: "hs_pipeline", Operator: "EQ", Value: p})
	}
	if window.Mode == syncpkg.ModeIncremental {
		since := strconv.FormatInt(window.Since.UnixMilli(), 10)
		filters = append(filters, filter{PropertyName: "hs_lastmodifieddate", Operator: "GTE", Value: since})
	}

	owners := map[string]string{} // owner id -> display name, per run
	err = c.searchTickets(ctx, filters, func(t ticket) {
		rec := mapTicket(t, meta)

		// A first sync imports the live workload only.
		if window.Mode == syncpkg.ModeFull && rec.Status == plugin.StatusCompleted {
			return
		}

		if ownerID := t.Properties["hubspot_owner_id"]; ownerID != "" {
			name, ok := owners[ownerID]
			if !ok {
				var lookupErr error
				name, lookupErr = c.ownerName(ctx, ownerID)
				if lookupErr != nil {
					// Owner is secondary data; the ticket still imports.
					env.Log().Warn("owner lookup failed", "owner", ownerID, "error", lookupErr)
					name = ""
				}
				owners[ownerID] = name
			}
			rec.Assignee = name
		}

		// hs_file_upload holds semicolon-separated file ids; resolve each to
		// a signed download URL. Attachments are secondary data: a failed
		// lookup drops the file, not the ticket.
		for _, fileID := range strings.Split(t.Properties["hs_file_upload"], ";") {
			fileID = strings.TrimSpace(fileID)
			if fileID == "" {
				continue
			}
			u, urlErr := c.signedURL(ctx, fileID)
			if urlErr != nil {
				env.Log().Warn("attachment lookup failed", "ticket", t.ID, "file", fileID, "error", urlErr)
				continue
			}
			rec.Attachments = append(rec.Attachments, u)
		}
		run.Process(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return run.Finish(ctx)
}

// ExportUpdate pushes local title and description edits back to the ticket.
// Best-effort: failures are logged, never returned.
func (s *Source) ExportUpdate(ctx context.Context, task *plugin.Task, changed []string, cfg plugin.Config, env *plugin.Env) {
	c, err := s.newClient(ctx, task.SourceID, cfg, env)
	if err != nil {
		env.Log().Warn("hubspot export skipped", "task", task.ID, "error", err)
		return
	}

	properties := map[string]string{}
	for _, field := range changed {
		switch field {
		case "title":
			properties["subject"] = task.Title
		case "description":
			properties["content"] = task.Description
		}
	}
	if len(properties) == 0 {
		return
	}

	if err := c.updateTicket(ctx, task.ExternalID, properties); err != nil {
		env.Log().Warn("hubspot export failed", "task", task.ID, "ticket", task.ExternalID, "error", err)
	}
}

// ExecuteAction runs one declared action against the ticket.
func (s *Source) ExecuteAction(ctx context.Context, actionID string, task *plugin.Task, input string, cfg plugin.Config, env *plugin.Env) (*plugin.ActionResult, error) {
	c, err := s.newClient(ctx, task.SourceID, cfg, env)
	if err != nil {
		return nil, err
	}

	switch actionID {
	case "add_note":
		if strings.TrimSpace(input) == "" {
			return &plugin.ActionResult{Error: "note body is empty"}, nil
		}
		if err := c.addNote(ctx, task.ExternalID, input); err != nil {
			return nil, err
		}
		return &plugin.ActionResult{Success: true}, nil

	case "close":
		stageID, err := s.closedStage(ctx, task.SourceID, cfg, c)
		if err != nil {
			return nil, err
		}
		if err := c.updateTicket(ctx, task.ExternalID, map[string]string{"hs_pipeline_stage": stageID}); err != nil {
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

// closedStage finds the configured pipeline's closed stage from cached
// metadata, refreshing the cache when stale.
func (s *Source) closedStage(ctx context.Context, sourceID string, cfg plugin.Config, c *client) (string, error) {
	meta := s.cache.get(sourceID)
	if meta == nil {
		var err error
		meta, err = s.cache.refresh(ctx, sourceID, c)
		if err != nil {
			return "", err
		}
	}

	for _, p := range meta.pipelines {
		if cfg["pipeline"] != "" && p.ID != cfg["pipeline"] {
			continue
		}
		for _, st := range p.Stages {
			if st.Metadata.TicketState == "CLOSED" {
				return st.ID, nil
			}
		}
	}
	return "", fmt.Errorf("no closed stage found in pipeline %q", cfg["pipeline"])
}

// GetUsers lists the portal's ticket owners.
func (s *Source) GetUsers(ctx context.Context, cfg plugin.Config, env *plugin.Env) ([]plugin.User, error) {
	c, err := s.newClient(ctx, "", cfg, env)
	if err != nil {
		return nil, err
	}
	owners, err := c.listOwners(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]plugin.User, 0, len(owners))
	for _, o := range owners {
		name := strings.TrimSpace(o.FirstName + " " + o.LastName)
		if name == "" {
			name = o.Email
		}
		users = append(users, plugin.User{ID: o.ID, Name: name, Email: o.Email})
	}
	return users, nil
}

// ReassignTask sets the ticket's owner. assignee is an owner id, as returned
// by GetUsers.
func (s *Source) ReassignTask(ctx context.Context, task *plugin.Task, assignee string, cfg plugin.Config, env *plugin.Env) error {
	c, err := s.newClient(ctx, task.SourceID, cfg, env)
	if err != nil {
		return err
	}
	return c.updateTicket(ctx, task.ExternalID, map[string]string{"hubspot_owner_id": assignee})
}

// newClient resolves the access token for the configured auth mode. OAuth
// tokens come from the token provider; token mode reads the config directly.
func (s *Source) newClient(ctx context.Context, sourceID string, cfg plugin.Config, env *plugin.Env) (*client, error) {
	token := cfg["token"]
	if cfg["auth_mode"] == "oauth" && sourceID != "" {
		if t := env.Token(ctx, sourceID); t != "" {
			token = t
		}
	}
	return newClientWithToken(token, env)
}
