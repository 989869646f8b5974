package plugin

import (
	"strings"

	"github.com/tidwall/gjson"
)

// FieldMapping maps a local field name to the remote path(s) that feed it.
// Paths use gjson syntax; alternatives are "|"-delimited and tried in order
// (e.g. "taskId|id"). The mapping is documentation-first: it drives each
// plugin's own mapping code and the generic Resolve helper used in tests.
type FieldMapping map[string]string

// Resolve extracts the value for a local field from a remote record's raw
// JSON, trying each alternative path until one yields a value. Returns ""
// when no path matches.
func (m FieldMapping) Resolve(raw, field string) string {
	spec, ok := m[field]
	if !ok {
		return ""
	}
	return ResolvePath(raw, spec)
}

// ResolvePath resolves a "|"-delimited gjson path list against raw JSON,
// returning the first present value.
func ResolvePath(raw, spec string) string {
	for _, path := range strings.Split(spec, "|") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		result := gjson.Get(raw, path)
		if !result.Exists() {
			continue
		}
		if result.IsArray() || result.IsObject() {
			return result.Raw
		}
		return result.String()
	}
	return ""
}
