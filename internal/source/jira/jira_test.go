package jira

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/tasksync/internal/plugin"
	syncpkg "github.com/randalmurphal/tasksync/internal/sync"
)

func TestBuildJQL(t *testing.T) {
	since := time.Date(2026, 8, 22, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		cfg    plugin.Config
		window syncpkg.Window
		want   string
	}{
		{
			name:   "full sync excludes done",
			cfg:    plugin.Config{"project": "PROJ"},
			window: syncpkg.Window{Mode: syncpkg.ModeFull},
			want:   `project = "PROJ" AND statusCategory != Done ORDER BY updated ASC`,
		},
		{
			name:   "incremental uses updated window",
			cfg:    plugin.Config{"project": "PROJ"},
			window: syncpkg.Window{Mode: syncpkg.ModeIncremental, Since: since},
			want:   `project = "PROJ" AND updated >= "2026-08-22 09:30" ORDER BY updated ASC`,
		},
		{
			name:   "extra jql is parenthesized",
			cfg:    plugin.Config{"project": "PROJ", "jql": "labels = agent"},
			window: syncpkg.Window{Mode: syncpkg.ModeFull},
			want:   `project = "PROJ" AND statusCategory != Done AND (labels = agent) ORDER BY updated ASC`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildJQL(tt.cfg, tt.window); got != tt.want {
				t.Errorf("buildJQL = %q\nwant        %q", got, tt.want)
			}
		})
	}
}

func testConfig(baseURL string) plugin.Config {
	return plugin.Config{
		"base_url":  baseURL,
		"email":     "me@example.com",
		"api_token": "tok",
		"project":   "PROJ",
	}
}

func TestCheckAuth(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/myself") {
				t.Errorf("path = %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accountId":"abc","displayName":"Ada"}`))
		}))
		defer srv.Close()

		s := &Source{}
		if err := s.CheckAuth(context.Background(), testConfig(srv.URL), &plugin.Env{}); err != nil {
			t.Errorf("check failed: %v", err)
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		s := &Source{}
		err := s.CheckAuth(context.Background(), testConfig(srv.URL), &plugin.Env{})
		if !errors.Is(err, plugin.ErrAuthFailed) {
			t.Errorf("err = %v, want ErrAuthFailed", err)
		}
	})
}

func TestExportUpdate(t *testing.T) {
	var body map[string]any
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Method != http.MethodPut || !strings.Contains(r.URL.Path, "/issue/PROJ-7") {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := &Source{}
	task := &plugin.Task{ID: "t1", ExternalID: "PROJ-7", Title: "Renamed", Description: "new body"}

	s.ExportUpdate(context.Background(), task, []string{"title"}, testConfig(srv.URL), &plugin.Env{})

	if hits != 1 {
		t.Fatalf("updates = %d, want 1", hits)
	}
	fields, ok := body["fields"].(map[string]any)
	if !ok || fields["summary"] != "Renamed" {
		t.Errorf("body = %v", body)
	}
	if _, ok := fields["description"]; ok {
		t.Error("description sent although unchanged")
	}

	// Nothing exportable in the changed set: no request at all.
	s.ExportUpdate(context.Background(), task, []string{"status"}, testConfig(srv.URL), &plugin.Env{})
	if hits != 1 {
		t.Errorf("updates after no-op export = %d, want 1", hits)
	}
}

func TestValidateConfig(t *testing.T) {
	s := &Source{}

	full := plugin.Config{
		"base_url":  "https://x.atlassian.net",
		"email":     "me@example.com",
		"api_token": "tok",
		"project":   "PROJ",
	}
	if err := s.ValidateConfig(full); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	delete(full, "api_token")
	err := s.ValidateConfig(full)
	if err == nil {
		t.Fatal("missing api_token accepted")
	}
	if !strings.Contains(err.Error(), "api_token") {
		t.Errorf("error does not name the missing key: %v", err)
	}
}
