package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// fakeStore is an in-memory plugin.TaskStore.
type fakeStore struct {
	tasks      map[string]*plugin.Task // keyed by task id
	nextID     int
	lastSynced map[string]time.Time

	failExternalID string // CreateTask/UpdateTask fail for this external id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[string]*plugin.Task{},
		lastSynced: map[string]time.Time{},
	}
}

func (s *fakeStore) GetTaskByExternalID(_ context.Context, sourceID, externalID string) (*plugin.Task, error) {
	for _, t := range s.tasks {
		if t.SourceID == sourceID && t.ExternalID == externalID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateTask(_ context.Context, t *plugin.Task) (*plugin.Task, error) {
	if t.ExternalID == s.failExternalID {
		return nil, errors.New("boom")
	}
	s.nextID++
	t.ID = fmt.Sprintf("task-%d", s.nextID)
	copied := *t
	s.tasks[t.ID] = &copied
	return t, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, id string, u plugin.TaskUpdate) error {
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("no task %s", id)
	}
	if t.ExternalID == s.failExternalID {
		return errors.New("boom")
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Assignee != nil {
		t.Assignee = *u.Assignee
	}
	if u.OutputFields != nil {
		t.OutputFields = *u.OutputFields
	}
	return nil
}

func (s *fakeStore) UpdateTaskSourceLastSynced(_ context.Context, sourceID string) error {
	s.lastSynced[sourceID] = time.Now()
	return nil
}

func (s *fakeStore) GetTaskSource(_ context.Context, sourceID string) (*plugin.TaskSource, error) {
	return &plugin.TaskSource{ID: sourceID}, nil
}

func (s *fakeStore) AttachmentsDir(taskID string) string { return "/tmp/" + taskID }

func testSource() *plugin.TaskSource {
	return &plugin.TaskSource{ID: "src-1", Name: "Test", Plugin: "github"}
}

func TestWindowFor(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("first sync is full", func(t *testing.T) {
		w := WindowFor(&plugin.TaskSource{ID: "s"}, 0, now)
		if w.Mode != ModeFull {
			t.Fatalf("mode = %v, want ModeFull", w.Mode)
		}
		if !w.Since.IsZero() {
			t.Errorf("Since = %v, want zero", w.Since)
		}
	})

	t.Run("synced source is incremental with default lookback", func(t *testing.T) {
		synced := now.Add(-2 * time.Hour)
		w := WindowFor(&plugin.TaskSource{ID: "s", LastSyncedAt: &synced}, 0, now)
		if w.Mode != ModeIncremental {
			t.Fatalf("mode = %v, want ModeIncremental", w.Mode)
		}
		if got := now.Sub(w.Since); got != DefaultLookback {
			t.Errorf("lookback = %v, want %v", got, DefaultLookback)
		}
	})

	t.Run("custom lookback", func(t *testing.T) {
		synced := now.Add(-time.Hour)
		w := WindowFor(&plugin.TaskSource{ID: "s", LastSyncedAt: &synced}, 72*time.Hour, now)
		if got := now.Sub(w.Since); got != 72*time.Hour {
			t.Errorf("lookback = %v, want 72h", got)
		}
	})
}

func TestRunCreatesAndDefaults(t *testing.T) {
	store := newFakeStore()
	run := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)

	run.Process(context.Background(), &Record{ExternalID: "101", Title: "First"})
	result, err := run.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Imported != 1 || result.Updated != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v, want 1 imported", result)
	}
	created, _ := store.GetTaskByExternalID(context.Background(), "src-1", "101")
	if created == nil {
		t.Fatal("task not created")
	}
	if created.Status != plugin.StatusNotStarted {
		t.Errorf("status = %s, want notstarted default", created.Status)
	}
	if created.Priority != plugin.PriorityMedium {
		t.Errorf("priority = %s, want medium default", created.Priority)
	}
	if _, ok := store.lastSynced["src-1"]; !ok {
		t.Error("last_synced_at not recorded")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	rec := &Record{ExternalID: "42", Title: "Original"}

	run := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	run.Process(context.Background(), rec)
	if _, err := run.Finish(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same external id again: updated in place, never duplicated.
	rec2 := &Record{ExternalID: "42", Title: "Renamed"}
	run2 := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	run2.Process(context.Background(), rec2)
	result, err := run2.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Imported != 0 || result.Updated != 1 {
		t.Fatalf("result = %+v, want 1 updated", result)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("task count = %d, want 1", len(store.tasks))
	}
	got, _ := store.GetTaskByExternalID(context.Background(), "src-1", "42")
	if got.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", got.Title)
	}
}

func TestRunStatusNeverClobberedByDefault(t *testing.T) {
	store := newFakeStore()

	run := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	run.Process(context.Background(), &Record{ExternalID: "7", Title: "T", Status: plugin.StatusNotStarted})
	run.Finish(context.Background())

	// Local state moved on since the import.
	for _, task := range store.tasks {
		task.Status = plugin.StatusInProgress
	}

	run2 := Start(store, testSource(), "Test", Window{Mode: ModeIncremental, Since: time.Now()}, nil)
	run2.Process(context.Background(), &Record{ExternalID: "7", Title: "T", Status: plugin.StatusNotStarted})
	run2.Finish(context.Background())

	got, _ := store.GetTaskByExternalID(context.Background(), "src-1", "7")
	if got.Status != plugin.StatusInProgress {
		t.Errorf("status = %s, local transition was clobbered", got.Status)
	}
}

func TestRunStatusOnUpdate(t *testing.T) {
	store := newFakeStore()

	run := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	run.Process(context.Background(), &Record{ExternalID: "7", Title: "T"})
	run.Finish(context.Background())

	run2 := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	run2.Process(context.Background(), &Record{
		ExternalID:     "7",
		Title:          "T",
		Status:         plugin.StatusWaiting,
		StatusOnUpdate: true,
	})
	run2.Finish(context.Background())

	got, _ := store.GetTaskByExternalID(context.Background(), "src-1", "7")
	if got.Status != plugin.StatusWaiting {
		t.Errorf("status = %s, want waiting", got.Status)
	}
}

func TestRunSkipsCompletedOnIncremental(t *testing.T) {
	store := newFakeStore()
	w := Window{Mode: ModeIncremental, Since: time.Now().Add(-24 * time.Hour)}

	run := Start(store, testSource(), "Test", w, nil)
	run.Process(context.Background(), &Record{ExternalID: "9", Title: "Closed", Status: plugin.StatusCompleted})
	result, err := run.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Imported != 0 || result.Updated != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v, want all zero", result)
	}
	if len(store.tasks) != 0 {
		t.Error("completed record was imported on incremental sync")
	}
}

func TestRunIsolatesRecordFailures(t *testing.T) {
	store := newFakeStore()
	store.failExternalID = "2"

	run := Start(store, testSource(), "Test", Window{Mode: ModeFull}, nil)
	for i := 1; i <= 3; i++ {
		run.Process(context.Background(), &Record{ExternalID: fmt.Sprint(i), Title: fmt.Sprintf("Task %d", i)})
	}
	result, err := run.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly 1", result.Errors)
	}
	if _, ok := store.lastSynced["src-1"]; !ok {
		t.Error("last_synced_at not recorded despite partial failure")
	}
}

func TestMergeOutputFields(t *testing.T) {
	existing := []plugin.OutputField{
		{ID: "summary", Name: "Summary", Value: "already filled"},
		{ID: "count", Name: "Count"},
	}
	incoming := []plugin.OutputField{
		{ID: "summary", Name: "Summary (renamed)"},
		{ID: "count", Name: "Count"},
		{ID: "extra", Name: "Extra"},
	}

	merged := mergeOutputFields(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	if merged[0].Value != "already filled" {
		t.Errorf("filled value lost: %v", merged[0].Value)
	}
	if merged[0].Name != "Summary (renamed)" {
		t.Errorf("schema refresh lost: %q", merged[0].Name)
	}
	if merged[1].Value != nil || merged[2].Value != nil {
		t.Error("unfilled fields should stay nil")
	}
}
