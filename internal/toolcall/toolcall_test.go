package toolcall

import "testing"

func TestUnwrapEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"enveloped payload",
			`{"content":[{"type":"text","text":"{\"ok\":true}"}]}`,
			`{"ok":true}`,
		},
		{
			"plain json passes through",
			`{"results":[]}`,
			`{"results":[]}`,
		},
		{
			"non-json passes through",
			"plain text response",
			"plain text response",
		},
		{
			"envelope with mixed content",
			`{"content":[{"type":"image","data":"..."},{"type":"text","text":"payload"}]}`,
			"payload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapEnvelope(tt.input); got != tt.want {
				t.Errorf("UnwrapEnvelope = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmbeddedError(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean payload", `{"results":[]}`, ""},
		{"isError with message", `{"isError":true,"message":"database not shared"}`, "database not shared"},
		{"isError without message", `{"isError":true}`, "remote call failed"},
		{"error string", `{"error":"invalid cursor"}`, "invalid cursor"},
		{"null error", `{"error":null,"data":1}`, ""},
		{"not json", "oops", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmbeddedError(tt.input); got != tt.want {
				t.Errorf("EmbeddedError(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvSlice(t *testing.T) {
	if got := envSlice(nil); got != nil {
		t.Errorf("envSlice(nil) = %v", got)
	}
	got := envSlice(map[string]string{"KEY": "value"})
	if len(got) != 1 || got[0] != "KEY=value" {
		t.Errorf("envSlice = %v", got)
	}
}
