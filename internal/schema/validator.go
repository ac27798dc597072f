package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// ViolationKind classifies a schema violation.
type ViolationKind string

const (
	MissingRequired ViolationKind = "missing_required"
	TypeMismatch    ViolationKind = "type_mismatch"
	UnknownField    ViolationKind = "unknown_field"
)

// Violation is one structured field problem, surfaced to the user so they
// can supply targeted feedback. Unknown fields are reported, never dropped.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Field   string        `json:"field"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Kind, v.Field, v.Message)
}

// Validator checks candidate field mappings against a contract type's
// definition. Pure; no side effects.
type Validator struct {
	registry *Registry
}

// NewValidator builds a validator over the given registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Definition exposes the registry lookup for callers that need the schema
// version or the prompt-side JSON schema.
func (v *Validator) Definition(ct constants.ContractType) (*Definition, error) {
	return v.registry.Definition(ct)
}

// Validate checks candidate against the definition for ct and returns the
// complete list of violations, ordered by field name. A nil slice means the
// candidate satisfies the schema. A required field carried as a null
// placeholder still counts as missing.
func (v *Validator) Validate(ct constants.ContractType, candidate model.FieldMap) ([]Violation, error) {
	def, err := v.registry.Definition(ct)
	if err != nil {
		return nil, err
	}

	var out []Violation
	for _, spec := range def.Fields {
		val, ok := candidate[spec.Name]
		if !ok || val.Null {
			if spec.Required {
				out = append(out, Violation{
					Kind:    MissingRequired,
					Field:   spec.Name,
					Message: fmt.Sprintf("required field has no value for %s", def.SchemaVersion),
				})
			}
			continue
		}
		out = append(out, checkValue(spec, spec.Name, val)...)
	}

	for name := range candidate {
		if _, ok := def.Field(name); !ok {
			out = append(out, Violation{
				Kind:    UnknownField,
				Field:   name,
				Message: fmt.Sprintf("field is not declared by %s", def.SchemaVersion),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func checkValue(spec FieldSpec, path string, val model.FieldValue) []Violation {
	if val.Kind != spec.Kind {
		return []Violation{{
			Kind:    TypeMismatch,
			Field:   path,
			Message: fmt.Sprintf("expected %s, got %s", spec.Kind, val.Kind),
		}}
	}
	if spec.Kind != model.KindList {
		return nil
	}

	var out []Violation
	for i, item := range val.List {
		for _, itemSpec := range spec.Items {
			itemPath := fmt.Sprintf("%s[%d].%s", path, i, itemSpec.Name)
			iv, ok := item[itemSpec.Name]
			if !ok || iv.Null {
				if itemSpec.Required {
					out = append(out, Violation{
						Kind:    MissingRequired,
						Field:   itemPath,
						Message: "required list field has no value",
					})
				}
				continue
			}
			out = append(out, checkValue(itemSpec, itemPath, iv)...)
		}
		for name := range item {
			known := false
			for _, itemSpec := range spec.Items {
				if itemSpec.Name == name {
					known = true
					break
				}
			}
			if !known {
				out = append(out, Violation{
					Kind:    UnknownField,
					Field:   fmt.Sprintf("%s[%d].%s", path, i, name),
					Message: "field is not declared by the list element shape",
				})
			}
		}
	}
	return out
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
