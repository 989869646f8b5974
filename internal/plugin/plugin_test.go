package plugin

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryUnknownKind(t *testing.T) {
	_, err := New(Kind("bugzilla"))
	if !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("err = %v, want ErrUnknownPlugin", err)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	Register(Kind("dup-test"), func() Plugin { return nil })
	defer func() {
		if recover() == nil {
			t.Error("second Register did not panic")
		}
	}()
	Register(Kind("dup-test"), func() Plugin { return nil })
}

func TestEnvLookback(t *testing.T) {
	env := &Env{Lookbacks: map[string]time.Duration{"slow-jira": 72 * time.Hour}}

	if got := env.Lookback("slow-jira"); got != 72*time.Hour {
		t.Errorf("configured lookback = %v, want 72h", got)
	}
	if got := env.Lookback("other"); got != 0 {
		t.Errorf("unconfigured lookback = %v, want 0", got)
	}

	var nilEnv *Env
	if got := nilEnv.Lookback("any"); got != 0 {
		t.Errorf("nil env lookback = %v, want 0", got)
	}
}

func TestResolvePath(t *testing.T) {
	raw := `{"taskId": "T-9", "title": "Fix login", "assignee": {"login": "ada"}, "labels": [{"name": "bug"}, {"name": "p1"}], "empty": ""}`

	tests := []struct {
		name string
		spec string
		want string
	}{
		{"simple", "title", "Fix login"},
		{"nested", "assignee.login", "ada"},
		{"first alternative wins", "taskId|id", "T-9"},
		{"falls through to second", "id|taskId", "T-9"},
		{"all absent", "id|uuid", ""},
		{"array kept as raw json", "labels.#.name", `["bug","p1"]`},
		{"present but empty", "empty|title", ""},
		{"whitespace around paths", " id | taskId ", "T-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolvePath(raw, tt.spec); got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.spec, got, tt.want)
			}
		})
	}
}

func TestFieldMappingResolve(t *testing.T) {
	m := FieldMapping{"external_id": "taskId|id"}
	raw := `{"id": "42"}`

	if got := m.Resolve(raw, "external_id"); got != "42" {
		t.Errorf("Resolve = %q, want 42", got)
	}
	if got := m.Resolve(raw, "unmapped"); got != "" {
		t.Errorf("Resolve(unmapped) = %q, want empty", got)
	}
}

func TestConfigFieldVisible(t *testing.T) {
	free := ConfigField{Key: "base_url"}
	gated := ConfigField{Key: "token", DependsOn: "auth_mode", DependsValue: "token"}

	if !free.Visible(Config{}) {
		t.Error("field without dependency should always be visible")
	}
	if gated.Visible(Config{"auth_mode": "oauth"}) {
		t.Error("gated field visible under wrong mode")
	}
	if !gated.Visible(Config{"auth_mode": "token"}) {
		t.Error("gated field hidden under its own mode")
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	schema := []ConfigField{
		{Key: "auth_mode", Required: true},
		{Key: "token", Required: true, DependsOn: "auth_mode", DependsValue: "token"},
		{Key: "pipeline", Required: false},
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"token mode complete", Config{"auth_mode": "token", "token": "abc"}, false},
		{"token mode missing token", Config{"auth_mode": "token"}, true},
		{"oauth mode skips hidden token", Config{"auth_mode": "oauth"}, false},
		{"whitespace is missing", Config{"auth_mode": "token", "token": "   "}, true},
		{"empty config", Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgainstSchema(tt.cfg, schema)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
