package extract

import (
	"reflect"
	"testing"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

func assistant(text string) Message {
	return Message{Role: roleAssistant, Segments: []Segment{{Type: segText, Text: text}}}
}

func TestValuesStrictFence(t *testing.T) {
	msgs := []Message{assistant("Done.\n```json\n{\"summary\": \"all good\", \"count\": 2}\n```\n")}

	got := Values(msgs)
	want := map[string]any{"summary": "all good", "count": float64(2)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Values = %v, want %v", got, want)
	}
}

func TestValuesTruncatedRecovery(t *testing.T) {
	// The message was cut off mid-pair: complete pairs survive, the
	// truncated one is dropped.
	msgs := []Message{assistant("```json\n{\"title\": \"Ship it\", \"count\": 3, \"flag\": tr")}

	got := Values(msgs)
	if got["title"] != "Ship it" {
		t.Errorf("title = %v", got["title"])
	}
	if got["count"] != float64(3) {
		t.Errorf("count = %v", got["count"])
	}
	if _, ok := got["flag"]; ok {
		t.Error("truncated pair should be dropped")
	}
}

func TestValuesPrefersLastJSONFence(t *testing.T) {
	text := "First try:\n```json\n{\"answer\": \"draft\"}\n```\n" +
		"Correction:\n```json\n{\"answer\": \"final\"}\n```\n"
	got := Values([]Message{assistant(text)})
	if got["answer"] != "final" {
		t.Errorf("answer = %v, want final", got["answer"])
	}
}

func TestValuesJSONFenceBeatsOtherFences(t *testing.T) {
	text := "```json\n{\"answer\": \"from json\"}\n```\n" +
		"```sh\necho hi\n```\n"
	got := Values([]Message{assistant(text)})
	if got["answer"] != "from json" {
		t.Errorf("answer = %v, want from json", got["answer"])
	}
}

func TestValuesNewestMessageWins(t *testing.T) {
	msgs := []Message{
		assistant("```json\n{\"v\": \"old\"}\n```"),
		{Role: "user", Segments: []Segment{{Type: segText, Text: "```json\n{\"v\": \"user\"}\n```"}}},
		assistant("```json\n{\"v\": \"new\"}\n```"),
	}
	got := Values(msgs)
	if got["v"] != "new" {
		t.Errorf("v = %v, want new (newest assistant message)", got["v"])
	}
}

func TestValuesSkipsEmptyNewestMessage(t *testing.T) {
	msgs := []Message{
		assistant("```json\n{\"v\": \"earlier\"}\n```"),
		assistant("Just narration, no fields here."),
	}
	got := Values(msgs)
	if got["v"] != "earlier" {
		t.Errorf("v = %v, want earlier", got["v"])
	}
}

func TestValuesBareObjectWithoutFence(t *testing.T) {
	got := Values([]Message{assistant(`{"done": true}`)})
	if got["done"] != true {
		t.Errorf("done = %v, want true", got["done"])
	}
}

func TestValuesNothingExtractable(t *testing.T) {
	if got := Values([]Message{assistant("no structured output here")}); got != nil {
		t.Errorf("Values = %v, want nil", got)
	}
}

func TestApplyMatching(t *testing.T) {
	msgs := []Message{assistant("```json\n{\"summary\": \"fixed\", \"Review Notes\": \"lgtm\", \"stray\": 1}\n```")}
	fields := []plugin.OutputField{
		{ID: "summary", Name: "Summary"},
		{ID: "notes", Name: "review notes"}, // matched by name, case-insensitive
		{ID: "untouched", Name: "Untouched", Value: "keep me"},
	}

	got := Apply(msgs, fields)

	if got[0].Value != "fixed" {
		t.Errorf("id match: %v", got[0].Value)
	}
	if got[1].Value != "lgtm" {
		t.Errorf("name match: %v", got[1].Value)
	}
	if got[2].Value != "keep me" {
		t.Errorf("unmatched field lost its value: %v", got[2].Value)
	}
	// Inputs stay untouched.
	if fields[0].Value != nil {
		t.Error("Apply mutated its input")
	}
}

func TestApplyFileFieldDefaults(t *testing.T) {
	msgs := []Message{
		{Role: roleAssistant, Segments: []Segment{
			{Type: segToolUse, Tool: "Write", FilePath: "report.md", Completed: true},
			{Type: segToolUse, Tool: "Edit", FilePath: "notes.txt", Completed: true},
			{Type: segToolUse, Tool: "Write", FilePath: "ignored.txt", Completed: false},
		}},
		assistant("no json at all"),
	}

	t.Run("single", func(t *testing.T) {
		got := Apply(msgs, []plugin.OutputField{{ID: "out", Name: "Output", Type: "file"}})
		if got[0].Value != "report.md" {
			t.Errorf("value = %v, want first written path", got[0].Value)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		got := Apply(msgs, []plugin.OutputField{{ID: "out", Name: "Output", Type: "file", Multiple: true}})
		want := []string{"report.md", "notes.txt"}
		if !reflect.DeepEqual(got[0].Value, want) {
			t.Errorf("value = %v, want %v", got[0].Value, want)
		}
	})

	t.Run("explicit value wins", func(t *testing.T) {
		withJSON := append(msgs, assistant("```json\n{\"out\": \"explicit.md\"}\n```"))
		got := Apply(withJSON, []plugin.OutputField{{ID: "out", Name: "Output", Type: "file"}})
		if got[0].Value != "explicit.md" {
			t.Errorf("value = %v, want explicit.md", got[0].Value)
		}
	})
}

func TestWrittenFilesDedupes(t *testing.T) {
	msgs := []Message{
		{Role: roleAssistant, Segments: []Segment{
			{Type: segToolUse, Tool: "write", FilePath: "a.go", Completed: true},
			{Type: segToolUse, Tool: "edit", FilePath: "a.go", Completed: true},
			{Type: segToolUse, Tool: "multiedit", FilePath: "b.go", Completed: true},
			{Type: segToolUse, Tool: "bash", FilePath: "c.sh", Completed: true},
		}},
	}
	got := WrittenFiles(msgs)
	want := []string{"a.go", "b.go"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WrittenFiles = %v, want %v", got, want)
	}
}

func TestPartialPairsEscapes(t *testing.T) {
	got := partialPairs(`{"msg": "line1\nline2 \"quoted\"", "n": 1.5,`)
	if got["msg"] != "line1\nline2 \"quoted\"" {
		t.Errorf("msg = %q", got["msg"])
	}
	if got["n"] != 1.5 {
		t.Errorf("n = %v", got["n"])
	}
}

func TestLastFencedBlockUnterminated(t *testing.T) {
	block, ok := lastFencedBlock("intro\n```json\n{\"k\": \"v\"}")
	if !ok {
		t.Fatal("open fence not found")
	}
	if block != `{"k": "v"}` {
		t.Errorf("block = %q", block)
	}
}
