package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"canvaschat/internal/domain"
)

// projectSchema describes the persisted project document. Validation is
// advisory: a project failing it is logged and loaded anyway, since a partly
// broken document beats losing the user's canvas.
const projectSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "createdAt"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "createdAt": {"type": "number"},
    "images": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string"},
          "x": {"type": "number"},
          "y": {"type": "number"},
          "width": {"type": "number"},
          "height": {"type": "number"}
        }
      }
    },
    "data": {
      "type": "object",
      "properties": {
        "elements": {"type": "array", "items": {"type": "object"}},
        "appState": {"type": "object"},
        "files": {"type": "object"}
      }
    },
    "messages": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["role"],
        "properties": {
          "role": {"type": "string", "enum": ["user", "assistant"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var compiledProjectSchema = mustCompileProjectSchema()

func mustCompileProjectSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("project.json", strings.NewReader(projectSchema)); err != nil {
		panic(fmt.Sprintf("add project schema resource: %v", err))
	}
	return compiler.MustCompile("project.json")
}

// ValidateProject checks a loaded project against the document schema.
func ValidateProject(p domain.Project) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project %q: %w", p.ID, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode project %q: %w", p.ID, err)
	}
	if err := compiledProjectSchema.Validate(v); err != nil {
		return fmt.Errorf("project %q: %w", p.ID, err)
	}
	return nil
}
