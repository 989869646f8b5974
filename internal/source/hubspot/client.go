// Package hubspot syncs HubSpot tickets into the local tracker over the CRM
// v3 REST API. Pipeline and stage metadata is cached per source instance so
// stage labels and open/closed states resolve without a lookup per ticket.
package hubspot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/remote"
)

// baseURL is swappable in tests.
var baseURL = "https://api.hubapi.com"

// ticketProperties are the ticket fields requested on every search.
var ticketProperties = []string{
	"subject",
	"content",
	"hs_ticket_priority",
	"hs_pipeline",
	"hs_pipeline_stage",
	"hubspot_owner_id",
	"hs_lastmodifieddate",
	"createdate",
	"hs_file_upload",
}

// client wraps the shared REST plumbing with HubSpot's CRM endpoints.
type client struct {
	rest *remote.Client
}

func newClientWithToken(token string, env *plugin.Env) (*client, error) {
	if token == "" {
		return nil, fmt.Errorf("hubspot: %w: no token available", plugin.ErrAuthFailed)
	}
	return &client{rest: remote.New(baseURL, token, remote.WithLogger(env.Log()))}, nil
}

// ticket is the raw CRM ticket record.
type ticket struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups,omitempty"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
	Sorts        []string      `json:"sorts,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Results []ticket `json:"results"`
	Paging  *struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

// searchTickets pages through the ticket search endpoint, invoking fn for
// each result.
func (c *client) searchTickets(ctx context.Context, filters []filter, fn func(t ticket)) error {
	req := searchRequest{
		Properties: ticketProperties,
		Limit:      100,
		Sorts:      []string{"hs_lastmodifieddate"},
	}
	if len(filters) > 0 {
		req.FilterGroups = []filterGroup{{Filters: filters}}
	}

	for {
		var resp searchResponse
		if err := c.rest.PostJSON(ctx, "/crm/v3/objects/tickets/search", req, &resp); err != nil {
			return fmt.Errorf("search tickets: %w", err)
		}
		for _, t := range resp.Results {
			fn(t)
		}
		if resp.Paging == nil || resp.Paging.Next.After == "" {
			return nil
		}
		req.After = resp.Paging.Next.After
		if err := c.rest.PageDelay(ctx); err != nil {
			return err
		}
	}
}

// pipeline is a ticket pipeline with its ordered stages.
type pipeline struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Stages []stage `json:"stages"`
}

type stage struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Metadata struct {
		TicketState string `json:"ticketState"` // OPEN or CLOSED
	} `json:"metadata"`
}

// listPipelines fetches all ticket pipelines with their stages.
func (c *client) listPipelines(ctx context.Context) ([]pipeline, error) {
	var resp struct {
		Results []pipeline `json:"results"`
	}
	if err := c.rest.GetJSON(ctx, "/crm/v3/pipelines/tickets", nil, &resp); err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	return resp.Results, nil
}

// owner is a HubSpot user that can own tickets.
type owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// listOwners pages through the owners endpoint.
func (c *client) listOwners(ctx context.Context) ([]owner, error) {
	var owners []owner
	after := ""
	for {
		query := url.Values{"limit": {"100"}}
		if after != "" {
			query.Set("after", after)
		}
		var resp struct {
			Results []owner `json:"results"`
			Paging  *struct {
				Next struct {
					After string `json:"after"`
				} `json:"next"`
			} `json:"paging"`
		}
		if err := c.rest.GetJSON(ctx, "/crm/v3/owners", query, &resp); err != nil {
			return nil, fmt.Errorf("list owners: %w", err)
		}
		owners = append(owners, resp.Results...)
		if resp.Paging == nil || resp.Paging.Next.After == "" {
			return owners, nil
		}
		after = resp.Paging.Next.After
		if err := c.rest.PageDelay(ctx); err != nil {
			return nil, err
		}
	}
}

// ownerName resolves an owner id to a display name. A deleted owner (404)
// resolves to "": absence of an owner is valid data.
func (c *client) ownerName(ctx context.Context, ownerID string) (string, error) {
	var o owner
	err := c.rest.GetJSON(ctx, "/crm/v3/owners/"+url.PathEscape(ownerID), nil, &o)
	if errors.Is(err, remote.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get owner %s: %w", ownerID, err)
	}
	if o.FirstName == "" && o.LastName == "" {
		return o.Email, nil
	}
	name := o.FirstName
	if o.LastName != "" {
		if name != "" {
			name += " "
		}
		name += o.LastName
	}
	return name, nil
}

// signedURL resolves an uploaded file id to a time-limited download URL.
func (c *client) signedURL(ctx context.Context, fileID string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.rest.GetJSON(ctx, "/files/v3/files/"+url.PathEscape(fileID)+"/signed-url", nil, &resp); err != nil {
		return "", fmt.Errorf("signed url for file %s: %w", fileID, err)
	}
	return resp.URL, nil
}

// updateTicket patches ticket properties.
func (c *client) updateTicket(ctx context.Context, ticketID string, properties map[string]string) error {
	body := map[string]any{"properties": properties}
	if err := c.rest.PatchJSON(ctx, "/crm/v3/objects/tickets/"+url.PathEscape(ticketID), body, nil); err != nil {
		return fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	return nil
}

// ticketToNoteAssociation is HubSpot's defined association type id for
// attaching a note to a ticket.
const ticketToNoteAssociation = 228

// addNote creates a note engagement associated with the ticket.
func (c *client) addNote(ctx context.Context, ticketID, body string) error {
	note := map[string]any{
		"properties": map[string]string{
			"hs_note_body": body,
			"hs_timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
		},
		"associations": []map[string]any{{
			"to": map[string]string{"id": ticketID},
			"types": []map[string]any{{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   ticketToNoteAssociation,
			}},
		}},
	}
	if err := c.rest.PostJSON(ctx, "/crm/v3/objects/notes", note, nil); err != nil {
		return fmt.Errorf("add note to ticket %s: %w", ticketID, err)
	}
	return nil
}
