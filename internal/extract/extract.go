// Package extract recovers structured output-field values from free-form
// agent transcripts. Agents are asked to end with a fenced JSON object but
// the text may be truncated or malformed; extraction degrades from strict
// parsing to per-pair recovery instead of giving up.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// Message is one transcript entry. Only assistant-authored messages are
// scanned for values; tool invocations are scanned for written file paths.
type Message struct {
	Role     string    `json:"role"`
	Segments []Segment `json:"segments"`
}

// Segment is a piece of a message: plain text or a tool invocation.
type Segment struct {
	Type string `json:"type"` // "text" or "tool_use"
	Text string `json:"text,omitempty"`

	// Tool invocation fields, set when Type is "tool_use".
	Tool      string `json:"tool,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

const (
	roleAssistant = "assistant"
	segText       = "text"
	segToolUse    = "tool_use"
)

// fileWriteTools are the tool names whose completed invocations count as
// file writes for defaulting file-typed output fields.
var fileWriteTools = map[string]bool{
	"write":       true,
	"edit":        true,
	"multiedit":   true,
	"create_file": true,
}

// Values scans messages newest-first and returns the extracted key/value
// pairs from the first assistant message that yields at least one key.
// Values from different messages are never merged.
func Values(messages []Message) map[string]any {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != roleAssistant {
			continue
		}
		var b strings.Builder
		for _, seg := range msg.Segments {
			if seg.Type == segText {
				b.WriteString(seg.Text)
			}
		}
		if values := fromText(b.String()); len(values) > 0 {
			return values
		}
	}
	return nil
}

// Apply matches extracted values to the given output fields: exact field id
// first, then case-insensitive name. Unmatched keys are discarded; fields
// with no match keep their prior value. File-typed fields still lacking a
// value default to the file paths written by completed tool invocations.
// The returned slice is a copy; inputs are not mutated.
func Apply(messages []Message, fields []plugin.OutputField) []plugin.OutputField {
	values := Values(messages)

	byID := map[string]any{}
	byName := map[string]any{}
	for k, v := range values {
		byID[k] = v
		byName[strings.ToLower(k)] = v
	}

	out := make([]plugin.OutputField, len(fields))
	copy(out, fields)

	var paths []string // collected lazily, only if a file field needs them
	for i := range out {
		if v, ok := byID[out[i].ID]; ok {
			out[i].Value = v
			continue
		}
		if v, ok := byName[strings.ToLower(out[i].Name)]; ok {
			out[i].Value = v
			continue
		}
		if out[i].Type == "file" && out[i].Value == nil {
			if paths == nil {
				paths = WrittenFiles(messages)
			}
			if len(paths) == 0 {
				continue
			}
			if out[i].Multiple {
				out[i].Value = paths
			} else {
				out[i].Value = paths[0]
			}
		}
	}
	return out
}

// WrittenFiles collects the file paths touched by completed file-write/edit
// tool invocations across all assistant messages, oldest first, de-duplicated.
func WrittenFiles(messages []Message) []string {
	seen := map[string]bool{}
	var paths []string
	for _, msg := range messages {
		if msg.Role != roleAssistant {
			continue
		}
		for _, seg := range msg.Segments {
			if seg.Type != segToolUse || !seg.Completed || seg.FilePath == "" {
				continue
			}
			if !fileWriteTools[strings.ToLower(seg.Tool)] {
				continue
			}
			if !seen[seg.FilePath] {
				seen[seg.FilePath] = true
				paths = append(paths, seg.FilePath)
			}
		}
	}
	return paths
}

// fromText extracts key/value pairs from one message's concatenated text.
func fromText(text string) map[string]any {
	block, ok := lastFencedBlock(text)
	if !ok {
		// No fence at all: treat the whole message as the candidate object.
		block = text
	}

	// Strict parse first.
	var strict map[string]any
	if err := json.Unmarshal([]byte(block), &strict); err == nil {
		return strict
	}

	// Truncated mid-object is the common failure; recover every complete
	// pair and silently drop the one cut off.
	return partialPairs(block)
}

var fencedRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)[ \t]*\n(.*?)```")

// lastFencedBlock returns the contents of the last ```json block, or the
// last fenced block of any kind when no json block exists. Models emit the
// final answer last; earlier blocks may be exploratory.
func lastFencedBlock(text string) (string, bool) {
	matches := fencedRe.FindAllStringSubmatch(text, -1)
	var lastAny, lastJSON string
	var haveAny, haveJSON bool
	for _, m := range matches {
		lastAny, haveAny = m[2], true
		if strings.EqualFold(m[1], "json") {
			lastJSON, haveJSON = m[2], true
		}
	}
	// A truncated message may open a fence and never close it.
	if open := lastOpenFence(text); open != "" {
		lastAny, haveAny = open, true
		if openLang(text) == "json" {
			lastJSON, haveJSON = open, true
		}
	}
	if haveJSON {
		return lastJSON, true
	}
	return lastAny, haveAny
}

var openFenceRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)[ \t]*\n([^`]*)$")

func lastOpenFence(text string) string {
	// Count fences; an odd number means the final one is unterminated.
	if strings.Count(text, "```")%2 == 0 {
		return ""
	}
	if m := openFenceRe.FindStringSubmatch(text); m != nil {
		return m[2]
	}
	return ""
}

func openLang(text string) string {
	if m := openFenceRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

var (
	stringPairRe  = regexp.MustCompile(`"((?:[^"\\]|\\.)+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	literalPairRe = regexp.MustCompile(`"((?:[^"\\]|\\.)+)"\s*:\s*(true|false|null|-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)\s*[,}\n]`)
)

// partialPairs recovers complete "key": value pairs from malformed JSON.
// Every pair that survived truncation is kept; a pair itself cut off is
// dropped.
func partialPairs(block string) map[string]any {
	values := map[string]any{}

	for _, m := range stringPairRe.FindAllStringSubmatch(block, -1) {
		values[unescape(m[1])] = unescape(m[2])
	}

	// Literal pairs need a terminator so a truncated `"flag": tr` or a
	// number cut mid-digits is not mistaken for a complete value.
	for _, m := range literalPairRe.FindAllStringSubmatch(block+"\n", -1) {
		key := unescape(m[1])
		if _, taken := values[key]; taken {
			continue
		}
		switch m[2] {
		case "true":
			values[key] = true
		case "false":
			values[key] = false
		case "null":
			values[key] = nil
		default:
			if n, err := strconv.ParseFloat(m[2], 64); err == nil {
				values[key] = n
			}
		}
	}

	if len(values) == 0 {
		return nil
	}
	return values
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`)

func unescape(s string) string {
	return unescaper.Replace(s)
}
