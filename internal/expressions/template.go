package expressions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/loomworks/loom/pkg/schema"
)

// templateRefPattern matches {{outputKey}} and {{outputKey.path.to.field}}
// references inside step payload values.
var templateRefPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// TemplateRef is one parsed {{...}} reference.
type TemplateRef struct {
	Key  string // the output key segment
	Path string // the dotted path after the key, without leading dot
}

// ExtractRefs returns all template references in a raw string.
func ExtractRefs(s string) []TemplateRef {
	matches := templateRefPattern.FindAllStringSubmatch(s, -1)
	refs := make([]TemplateRef, 0, len(matches))
	for _, m := range matches {
		token := m[1]
		key, path, _ := strings.Cut(token, ".")
		refs = append(refs, TemplateRef{Key: key, Path: path})
	}
	return refs
}

// TemplateLinter checks {{outputKey.path}} references in step payloads. It
// never evaluates templates — it only flags references that cannot resolve
// (unknown output key) or that no engine could parse (malformed path).
// Paths are parsed as jq field expressions.
type TemplateLinter struct{}

// NewTemplateLinter creates a TemplateLinter.
func NewTemplateLinter() *TemplateLinter {
	return &TemplateLinter{}
}

// CheckTemplates lints all template references against the definition's
// declared output keys. All findings are warnings: the core guarantees only
// output-key uniqueness, and the engine owns template resolution.
func (l *TemplateLinter) CheckTemplates(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	keys := make(map[string]bool)
	for _, step := range def.Steps {
		if step.OutputKey != "" {
			keys[step.OutputKey] = true
		}
	}

	ids := make([]string, 0, len(def.Steps))
	for id := range def.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		step := def.Steps[id]
		if step.Payload == nil {
			continue
		}
		raw, err := json.Marshal(step.Payload)
		if err != nil {
			continue
		}
		path := fmt.Sprintf("steps[%s]", id)
		for _, ref := range ExtractRefs(string(raw)) {
			if !keys[ref.Key] {
				result.AddStepWarning(id, path, schema.ErrCodeDanglingReference,
					fmt.Sprintf("step %q references unknown output key %q", id, ref.Key))
				continue
			}
			if ref.Path == "" {
				continue
			}
			if _, err := gojq.Parse("." + ref.Path); err != nil {
				result.AddStepWarning(id, path, schema.ErrCodeMalformedPayload,
					fmt.Sprintf("step %q has malformed template path %q: %v", id, ref.Path, err))
			}
		}
	}

	return result
}
