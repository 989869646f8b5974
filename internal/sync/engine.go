// Package sync implements the import/reconciliation algorithm shared by all
// source plugins: full-vs-incremental window selection, idempotent upsert by
// (source_id, external_id), and per-record failure isolation.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// DefaultLookback is the incremental-sync sliding window. Syncing everything
// modified in the last 24 hours, rather than since last_synced_at exactly,
// tolerates clock skew and missed runs at the cost of re-processing
// unchanged records.
const DefaultLookback = 24 * time.Hour

// Mode selects between a first (full) sync and an incremental one.
type Mode int

const (
	// ModeFull fetches only records in an open/active remote state, so a
	// first sync does not drag in historical closed items.
	ModeFull Mode = iota
	// ModeIncremental fetches records modified within the lookback window,
	// across both open and closed states.
	ModeIncremental
)

// Window tells a plugin's fetch code what to ask the remote API for.
type Window struct {
	Mode  Mode
	Since time.Time // zero for ModeFull
}

// WindowFor derives the sync window from the source's last_synced_at.
// lookback <= 0 falls back to DefaultLookback.
func WindowFor(src *plugin.TaskSource, lookback time.Duration, now time.Time) Window {
	if src.LastSyncedAt == nil {
		return Window{Mode: ModeFull}
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return Window{Mode: ModeIncremental, Since: now.Add(-lookback)}
}

// Record is a remote record already mapped to local-task shape by the
// plugin's translation tables. ExternalID is the only mandatory field.
type Record struct {
	ExternalID   string
	Title        string
	Description  string
	Type         string
	Priority     plugin.Priority
	Status       plugin.Status
	Assignee     string
	DueDate      string
	Labels       []string
	Attachments  []string
	OutputFields []plugin.OutputField
	Resolution   string

	// StatusOnUpdate controls whether Status is written back to an existing
	// task. Sources whose local status is driven by in-app agents leave it
	// false so updates never clobber local state transitions.
	StatusOnUpdate bool
}

// Run accumulates one sync invocation. Create it with Start, feed it records
// with Process (and mapping failures with Fail), then call Finish.
type Run struct {
	store      plugin.TaskStore
	log        *slog.Logger
	sourceID   string
	sourceName string
	window     Window
	result     plugin.SyncResult
}

// Start begins a sync run for the given source.
func Start(store plugin.TaskStore, src *plugin.TaskSource, displayName string, w Window, log *slog.Logger) *Run {
	if log == nil {
		log = slog.Default()
	}
	return &Run{
		store:      store,
		log:        log,
		sourceID:   src.ID,
		sourceName: displayName,
		window:     w,
	}
}

// Process upserts one mapped record. Any failure is isolated into the
// result's error list; Process never returns an error to its caller.
func (r *Run) Process(ctx context.Context, rec *Record) {
	if err := r.upsert(ctx, rec); err != nil {
		r.Fail(rec.ExternalID, rec.Title, err)
	}
}

// Fail records a per-record failure (mapping or upsert) without aborting.
func (r *Run) Fail(externalID, title string, err error) {
	recErr := &plugin.RecordError{ExternalID: externalID, Title: title, Err: err}
	r.log.Warn("record failed", "source", r.sourceID, "external_id", externalID, "error", err)
	r.result.Errors = append(r.result.Errors, recErr.Error())
}

func (r *Run) upsert(ctx context.Context, rec *Record) error {
	if rec.ExternalID == "" {
		return fmt.Errorf("record has no external id")
	}

	// Already-closed items already know their closure; skipping them on
	// incremental runs avoids overwrite churn.
	if r.window.Mode == ModeIncremental && rec.Status == plugin.StatusCompleted {
		return nil
	}

	existing, err := r.store.GetTaskByExternalID(ctx, r.sourceID, rec.ExternalID)
	if err != nil {
		return fmt.Errorf("lookup task: %w", err)
	}

	if existing == nil {
		status := rec.Status
		if status == "" {
			status = plugin.StatusNotStarted
		}
		priority := rec.Priority
		if priority == "" {
			priority = plugin.PriorityMedium
		}
		t := &plugin.Task{
			ExternalID:   rec.ExternalID,
			SourceID:     r.sourceID,
			Source:       r.sourceName,
			Title:        rec.Title,
			Description:  rec.Description,
			Type:         rec.Type,
			Priority:     priority,
			Status:       status,
			Assignee:     rec.Assignee,
			DueDate:      rec.DueDate,
			Labels:       rec.Labels,
			Attachments:  rec.Attachments,
			OutputFields: rec.OutputFields,
			Resolution:   rec.Resolution,
		}
		if _, err := r.store.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		r.result.Imported++
		return nil
	}

	update := plugin.TaskUpdate{
		Title:       &rec.Title,
		Description: &rec.Description,
		Assignee:    &rec.Assignee,
		DueDate:     &rec.DueDate,
		Labels:      &rec.Labels,
	}
	if rec.Type != "" {
		update.Type = &rec.Type
	}
	if rec.Priority != "" {
		update.Priority = &rec.Priority
	}
	if rec.StatusOnUpdate && rec.Status != "" {
		update.Status = &rec.Status
	}
	if rec.Resolution != "" {
		update.Resolution = &rec.Resolution
	}
	if len(rec.Attachments) > 0 {
		update.Attachments = &rec.Attachments
	}
	if len(rec.OutputFields) > 0 {
		merged := mergeOutputFields(existing.OutputFields, rec.OutputFields)
		update.OutputFields = &merged
	}
	if err := r.store.UpdateTask(ctx, existing.ID, update); err != nil {
		return fmt.Errorf("update task %s: %w", existing.ID, err)
	}
	r.result.Updated++
	return nil
}

// mergeOutputFields refreshes the field schema from the remote while keeping
// values already populated locally (by a user or by extraction): a re-import
// must never wipe filled-in fields.
func mergeOutputFields(existing, incoming []plugin.OutputField) []plugin.OutputField {
	values := make(map[string]any, len(existing))
	for _, f := range existing {
		if f.Value != nil {
			values[f.ID] = f.Value
		}
	}

	merged := make([]plugin.OutputField, len(incoming))
	for i, f := range incoming {
		if f.Value == nil {
			if v, ok := values[f.ID]; ok {
				f.Value = v
			}
		}
		merged[i] = f
	}
	return merged
}

// Finish records the new last_synced_at and returns the accumulated result.
// The timestamp is written even when individual records failed: the run
// itself completed.
func (r *Run) Finish(ctx context.Context) (*plugin.SyncResult, error) {
	if err := r.store.UpdateTaskSourceLastSynced(ctx, r.sourceID); err != nil {
		return nil, fmt.Errorf("record sync timestamp: %w", err)
	}
	r.log.Info("sync finished",
		"source", r.sourceID,
		"imported", r.result.Imported,
		"updated", r.result.Updated,
		"errors", len(r.result.Errors))
	result := r.result
	return &result, nil
}
