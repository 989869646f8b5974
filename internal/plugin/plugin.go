package plugin

import (
	"context"
	"log/slog"
	"time"
)

// Kind identifies a source plugin implementation.
type Kind string

const (
	KindGitHub  Kind = "github"
	KindGitLab  Kind = "gitlab"
	KindJira    Kind = "jira"
	KindHubSpot Kind = "hubspot"
	KindNotion  Kind = "notion"
	KindPeakflo Kind = "peakflo"
)

// Plugin is the contract every source implementation satisfies. The tracker
// never talks to a remote API except through this interface.
type Plugin interface {
	// Kind returns the registered plugin kind.
	Kind() Kind

	// ConfigSchema returns the ordered, declarative configuration schema.
	// Purely declarative, no side effects.
	ConfigSchema() []ConfigField

	// ResolveOptions performs a live remote lookup keyed by an opaque resolver
	// name from the config schema (e.g. "pipelines", "owners"). It returns an
	// empty list rather than an error when credentials are absent or the call
	// fails: the result populates UI dropdowns speculatively, so failures are
	// logged and swallowed.
	ResolveOptions(ctx context.Context, resolver string, cfg Config, env *Env) []Option

	// ValidateConfig checks the config before any network call. It must verify
	// that every authentication mode's required fields are present.
	ValidateConfig(cfg Config) error

	// FieldMapping documents which remote field(s) contribute to each local
	// field. Alternatives are expressed as a "|"-delimited path list.
	FieldMapping(cfg Config) FieldMapping

	// Actions returns the remote actions this source exposes.
	Actions(cfg Config) []Action

	// ImportTasks runs one sync: full on first run, incremental afterwards.
	// Per-record failures are accumulated in the result, never thrown.
	ImportTasks(ctx context.Context, sourceID string, cfg Config, env *Env) (*SyncResult, error)

	// ExportUpdate pushes local field changes to the remote system.
	// Best-effort: failures are logged, never returned, because export runs
	// outside any user-visible request/response flow.
	ExportUpdate(ctx context.Context, task *Task, changed []string, cfg Config, env *Env)

	// ExecuteAction runs one declared action against the remote system.
	ExecuteAction(ctx context.Context, actionID string, task *Task, input string, cfg Config, env *Env) (*ActionResult, error)
}

// UserDirectory is an optional capability: not every source exposes a user
// listing. Callers discover it with a type assertion.
type UserDirectory interface {
	GetUsers(ctx context.Context, cfg Config, env *Env) ([]User, error)
}

// Reassigner is an optional capability for sources that support changing a
// record's assignee remotely.
type Reassigner interface {
	ReassignTask(ctx context.Context, task *Task, assignee string, cfg Config, env *Env) error
}

// AuthChecker is an optional capability for sources that can verify their
// credentials with a live call before any sync runs.
type AuthChecker interface {
	CheckAuth(ctx context.Context, cfg Config, env *Env) error
}

// TaskStore is the local persistence contract plugins consume. The store's
// own schema, locking, and transactions are its business.
type TaskStore interface {
	// GetTaskByExternalID returns the task linked to (sourceID, externalID),
	// or nil when no such task exists.
	GetTaskByExternalID(ctx context.Context, sourceID, externalID string) (*Task, error)
	CreateTask(ctx context.Context, t *Task) (*Task, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error
	UpdateTaskSourceLastSynced(ctx context.Context, sourceID string) error
	GetTaskSource(ctx context.Context, sourceID string) (*TaskSource, error)
	AttachmentsDir(taskID string) string
}

// TokenProvider supplies OAuth access tokens for sources using delegated
// auth. Token acquisition and refresh happen elsewhere; a source with no
// token gets ("", nil).
type TokenProvider interface {
	ValidToken(ctx context.Context, sourceID string) (string, error)
}

// Env carries the collaborators a plugin operation may need. It is plumbed
// through every contract method so implementations stay stateless apart from
// their own metadata caches.
type Env struct {
	Store  TaskStore
	Tokens TokenProvider
	Logger *slog.Logger

	// Lookbacks holds per-source overrides of the incremental sync window,
	// keyed by source id. Sources absent from the map use the default.
	Lookbacks map[string]time.Duration
}

// Log returns the env's logger, falling back to slog.Default.
func (e *Env) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Lookback returns the source's configured incremental lookback window, or 0
// when the source has none and the default applies.
func (e *Env) Lookback(sourceID string) time.Duration {
	if e == nil {
		return 0
	}
	return e.Lookbacks[sourceID]
}

// Token resolves the OAuth token for sourceID, or "" when no provider is
// configured or no token is stored.
func (e *Env) Token(ctx context.Context, sourceID string) string {
	if e == nil || e.Tokens == nil {
		return ""
	}
	tok, err := e.Tokens.ValidToken(ctx, sourceID)
	if err != nil {
		e.Log().Warn("token lookup failed", "source", sourceID, "error", err)
		return ""
	}
	return tok
}
