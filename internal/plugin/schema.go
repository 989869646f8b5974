package plugin

import (
	"fmt"
	"strings"
)

// ConfigFieldType enumerates the field widgets a settings UI can render.
type ConfigFieldType string

const (
	FieldText          ConfigFieldType = "text"
	FieldNumber        ConfigFieldType = "number"
	FieldCheckbox      ConfigFieldType = "checkbox"
	FieldSelect        ConfigFieldType = "select"
	FieldDynamicSelect ConfigFieldType = "dynamic-select"
	FieldKeyValue      ConfigFieldType = "key-value"
	FieldPassword      ConfigFieldType = "password"
)

// ConfigField describes one entry of a plugin's configuration schema.
type ConfigField struct {
	Key      string
	Label    string
	Type     ConfigFieldType
	Required bool

	// Options holds the static choices for a select field.
	Options []Option

	// OptionsResolver names the ResolveOptions key that returns live choices
	// for a dynamic-select field (e.g. "pipelines").
	OptionsResolver string

	// DependsOn/DependsValue hide the field unless another config key holds
	// the given value (e.g. the token field only shows when auth_mode=token).
	DependsOn    string
	DependsValue string
}

// Visible reports whether the field applies under the given config, honoring
// its dependency rule.
func (f ConfigField) Visible(cfg Config) bool {
	if f.DependsOn == "" {
		return true
	}
	return cfg[f.DependsOn] == f.DependsValue
}

// ValidateAgainstSchema checks cfg for missing required fields, skipping
// fields hidden by their dependency rule. It is the generic half of config
// validation; plugins layer source-specific checks on top in ValidateConfig.
func ValidateAgainstSchema(cfg Config, schema []ConfigField) error {
	var missing []string
	for _, f := range schema {
		if !f.Required || !f.Visible(cfg) {
			continue
		}
		if strings.TrimSpace(cfg[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
