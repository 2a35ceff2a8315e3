package codec

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/loom/pkg/schema"
)

// ToYAML renders a definition as YAML for file-based authoring and review.
// The definition's custom JSON form is the canonical wire shape, so the
// value round-trips through JSON first.
func ToYAML(def *schema.WorkflowDefinition) ([]byte, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// FromYAML parses a YAML definition document.
func FromYAML(data []byte) (*schema.WorkflowDefinition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "parse yaml definition").WithCause(err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode yaml definition").WithCause(err)
	}
	return &def, nil
}
