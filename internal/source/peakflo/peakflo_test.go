package peakflo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// fakeStore is the minimal TaskStore the import path touches.
type fakeStore struct {
	source  *plugin.TaskSource
	created []*plugin.Task
}

func (s *fakeStore) GetTaskByExternalID(context.Context, string, string) (*plugin.Task, error) {
	return nil, nil
}

func (s *fakeStore) CreateTask(_ context.Context, t *plugin.Task) (*plugin.Task, error) {
	s.created = append(s.created, t)
	return t, nil
}

func (s *fakeStore) UpdateTask(context.Context, string, plugin.TaskUpdate) error { return nil }

func (s *fakeStore) UpdateTaskSourceLastSynced(context.Context, string) error { return nil }

func (s *fakeStore) GetTaskSource(context.Context, string) (*plugin.TaskSource, error) {
	return s.source, nil
}

func (s *fakeStore) AttachmentsDir(string) string { return "" }

func TestMapTask(t *testing.T) {
	raw := []byte(`{
		"taskId": "T-100",
		"title": "Approve Q3 invoice",
		"status": "pending_approval",
		"priority": "high",
		"dueDate": "2026-09-01",
		"assignee": {"name": "Ada", "email": "ada@example.com"},
		"outputSchema": [
			{"id": "amount", "name": "Approved Amount", "type": "number", "required": true},
			{"id": "notes", "name": "Notes", "type": "text"}
		]
	}`)

	rec, err := mapTask(raw)
	if err != nil {
		t.Fatal(err)
	}

	if rec.ExternalID != "T-100" {
		t.Errorf("external id = %q", rec.ExternalID)
	}
	if rec.Type != "approval" {
		t.Errorf("type = %q", rec.Type)
	}
	if rec.Status != plugin.StatusInReview {
		t.Errorf("status = %s, want inreview", rec.Status)
	}
	if rec.Priority != plugin.PriorityHigh {
		t.Errorf("priority = %s", rec.Priority)
	}
	if rec.Assignee != "Ada" {
		t.Errorf("assignee = %q", rec.Assignee)
	}
	if len(rec.OutputFields) != 2 || !rec.OutputFields[0].Required {
		t.Errorf("output fields = %+v", rec.OutputFields)
	}
}

func TestMapTaskIDFallback(t *testing.T) {
	rec, err := mapTask([]byte(`{"id": "legacy-7", "title": "x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rec.ExternalID != "legacy-7" {
		t.Errorf("external id = %q, want legacy-7", rec.ExternalID)
	}

	if _, err := mapTask([]byte(`{"title": "no id at all"}`)); err == nil {
		t.Error("task without any id accepted")
	}
}

func TestImportTasksNamesFailedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tasks": [
			{"taskId": "T-1", "title": "Good one", "status": "open"},
			{"title": "Broken one"}
		]}`))
	}))
	defer srv.Close()

	store := &fakeStore{source: &plugin.TaskSource{ID: "pf1", Plugin: "peakflo"}}
	s := &Source{}
	cfg := plugin.Config{"token": "tok", "base_url": srv.URL}

	result, err := s.ImportTasks(context.Background(), "pf1", cfg, &plugin.Env{Store: store})
	if err != nil {
		t.Fatal(err)
	}

	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want 1", result.Errors)
	}
	// The error names the record it belongs to.
	if !strings.Contains(result.Errors[0], "Broken one") {
		t.Errorf("error does not identify the record: %q", result.Errors[0])
	}
}

func TestRecordIdentity(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantID    string
		wantTitle string
	}{
		{"task id", `{"taskId": "T-9", "title": "Pay invoice"}`, "T-9", "Pay invoice"},
		{"legacy id", `{"id": "legacy-3"}`, "legacy-3", ""},
		{"title only", `{"title": "No id here"}`, "", "No id here"},
		{"nothing parses", `"just a string"`, "", `"just a string"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, title := recordIdentity(json.RawMessage(tt.raw))
			if id != tt.wantID || title != tt.wantTitle {
				t.Errorf("recordIdentity = (%q, %q), want (%q, %q)", id, title, tt.wantID, tt.wantTitle)
			}
		})
	}
}

func TestExportUpdate(t *testing.T) {
	var body map[string]string
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Method != http.MethodPatch || r.URL.Path != "/v1/tasks/T-9" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := &Source{}
	cfg := plugin.Config{"token": "tok", "base_url": srv.URL}
	task := &plugin.Task{ID: "t1", ExternalID: "T-9", Title: "Renamed", DueDate: "2026-10-01"}

	s.ExportUpdate(context.Background(), task, []string{"title", "due_date"}, cfg, &plugin.Env{})

	if hits != 1 {
		t.Fatalf("updates = %d, want 1", hits)
	}
	if body["title"] != "Renamed" || body["dueDate"] != "2026-10-01" {
		t.Errorf("body = %v", body)
	}

	// Nothing exportable in the changed set: no request at all.
	s.ExportUpdate(context.Background(), task, []string{"status"}, cfg, &plugin.Env{})
	if hits != 1 {
		t.Errorf("updates after no-op export = %d, want 1", hits)
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected plugin.Status
	}{
		{"open", plugin.StatusNotStarted},
		{"in_progress", plugin.StatusInProgress},
		{"pending_approval", plugin.StatusInReview},
		{"waiting", plugin.StatusWaiting},
		{"approved", plugin.StatusCompleted},
		{"completed", plugin.StatusCompleted},
		{"rejected", plugin.StatusCancelled},
		{"cancelled", plugin.StatusCancelled},
		{"", plugin.StatusNotStarted},
	}
	for _, tt := range tests {
		if got := mapStatus(tt.input); got != tt.expected {
			t.Errorf("mapStatus(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestOutputPayload(t *testing.T) {
	fields := []plugin.OutputField{
		{ID: "amount", Name: "Approved Amount", Required: true, Value: 1500.0},
		{ID: "notes", Name: "Notes"},
		{ID: "receipt", Name: "Receipt", Required: true},
	}

	outputs, missing := outputPayload(fields)

	if outputs["amount"] != 1500.0 {
		t.Errorf("outputs = %v", outputs)
	}
	if _, ok := outputs["notes"]; ok {
		t.Error("unfilled optional field included")
	}
	if len(missing) != 1 || missing[0] != "Receipt" {
		t.Errorf("missing = %v", missing)
	}
}

func TestExecuteActionComplete(t *testing.T) {
	var posted map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks/T-1/actions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&posted)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	s := &Source{}
	task := &plugin.Task{
		ID:         "local-1",
		ExternalID: "T-1",
		OutputFields: []plugin.OutputField{
			{ID: "amount", Name: "Amount", Required: true, Value: 42.0},
		},
	}
	cfg := plugin.Config{"token": "tok", "base_url": srv.URL}

	result, err := s.ExecuteAction(context.Background(), "complete", task, "", cfg, &plugin.Env{})
	if err != nil {
		t.Fatal(err)
	}

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if *result.TaskUpdate.Status != plugin.StatusCompleted || *result.TaskUpdate.Resolution != "completed" {
		t.Errorf("task update = %+v", result.TaskUpdate)
	}
	if posted["action"] != "complete" {
		t.Errorf("posted action = %v", posted["action"])
	}
	outputs := posted["outputs"].(map[string]any)
	if outputs["amount"] != 42.0 {
		t.Errorf("posted outputs = %v", outputs)
	}
}

func TestExecuteActionCompleteMissingRequired(t *testing.T) {
	s := &Source{}
	task := &plugin.Task{
		ExternalID:   "T-1",
		OutputFields: []plugin.OutputField{{ID: "amount", Name: "Amount", Required: true}},
	}

	result, err := s.ExecuteAction(context.Background(), "complete", task, "",
		plugin.Config{"token": "tok"}, &plugin.Env{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.Error == "" {
		t.Errorf("missing required field accepted: %+v", result)
	}
}

func TestExecuteActionEmbeddedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 2xx carrying an application-level failure.
		w.Write([]byte(`{"error": "task already approved"}`))
	}))
	defer srv.Close()

	s := &Source{}
	cfg := plugin.Config{"token": "tok", "base_url": srv.URL}

	result, err := s.ExecuteAction(context.Background(), "approve",
		&plugin.Task{ExternalID: "T-1"}, "", cfg, &plugin.Env{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("embedded error treated as success")
	}
	if result.Error != "task already approved" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestExecuteActionRejectNeedsReason(t *testing.T) {
	s := &Source{}
	result, err := s.ExecuteAction(context.Background(), "reject",
		&plugin.Task{ExternalID: "T-1"}, " ", plugin.Config{"token": "tok"}, &plugin.Env{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.Error == "" {
		t.Errorf("reject without reason accepted: %+v", result)
	}
}
