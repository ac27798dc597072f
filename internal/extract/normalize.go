package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/contracts-desk/internal/model"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

var reDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeRaw converts the model's raw JSON output into the canonical field
// mapping. Declared fields are coerced toward their declared kind where the
// raw value allows it; unknown fields are kept with an inferred kind so the
// validator can report them instead of silently dropping them. A payload
// that is not a JSON object at all is an unparseable response.
func NormalizeRaw(def *schema.Definition, raw []byte) (model.FieldMap, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &Error{Kind: ErrUnparseable, Cause: fmt.Errorf("decode model output: %w", err)}
	}

	out := make(model.FieldMap, len(m))
	for name, rv := range m {
		if spec, ok := def.Field(name); ok {
			out[name] = coerce(spec, rv)
			continue
		}
		out[name] = infer(rv)
	}
	return out, nil
}

// PadRequired returns a copy of candidate where every required field the
// model omitted is present as a null placeholder. Every result offered for
// confirmation carries its full required field set, possibly null.
func PadRequired(def *schema.Definition, candidate model.FieldMap) model.FieldMap {
	out := make(model.FieldMap, len(candidate))
	for k, v := range candidate {
		out[k] = v
	}
	for _, spec := range def.Fields {
		if spec.Required {
			if _, ok := out[spec.Name]; !ok {
				out[spec.Name] = model.NullValue(spec.Kind)
			}
		}
	}
	return out
}

func coerce(spec schema.FieldSpec, rv any) model.FieldValue {
	if rv == nil {
		return model.NullValue(spec.Kind)
	}
	switch spec.Kind {
	case model.KindNumber:
		switch t := rv.(type) {
		case float64:
			return model.NumberValue(t)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return model.NumberValue(f)
			}
		}
	case model.KindDate:
		if s, ok := rv.(string); ok {
			s = strings.TrimSpace(s)
			if reDate.MatchString(s) {
				return model.DateValue(s)
			}
		}
	case model.KindString:
		if s, ok := rv.(string); ok {
			return model.StringValue(strings.TrimSpace(s))
		}
	case model.KindList:
		if items, ok := rv.([]any); ok {
			list := make([]model.FieldMap, 0, len(items))
			for _, it := range items {
				obj, ok := it.(map[string]any)
				if !ok {
					list = append(list, model.FieldMap{"value": infer(it)})
					continue
				}
				entry := make(model.FieldMap, len(obj))
				for k, v := range obj {
					if itemSpec, ok := specFor(spec.Items, k); ok {
						entry[k] = coerce(itemSpec, v)
					} else {
						entry[k] = infer(v)
					}
				}
				list = append(list, entry)
			}
			return model.ListValue(list)
		}
	}
	// Wrong raw shape for the declared kind; keep the inferred value so the
	// validator reports a type_mismatch the user can see.
	return infer(rv)
}

func specFor(specs []schema.FieldSpec, name string) (schema.FieldSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return schema.FieldSpec{}, false
}

func infer(rv any) model.FieldValue {
	switch t := rv.(type) {
	case nil:
		return model.NullValue(model.KindString)
	case float64:
		return model.NumberValue(t)
	case bool:
		return model.StringValue(strconv.FormatBool(t))
	case string:
		s := strings.TrimSpace(t)
		if reDate.MatchString(s) {
			return model.DateValue(s)
		}
		return model.StringValue(s)
	case []any:
		list := make([]model.FieldMap, 0, len(t))
		for _, it := range t {
			if obj, ok := it.(map[string]any); ok {
				entry := make(model.FieldMap, len(obj))
				for k, v := range obj {
					entry[k] = infer(v)
				}
				list = append(list, entry)
			} else {
				list = append(list, model.FieldMap{"value": infer(it)})
			}
		}
		return model.ListValue(list)
	default:
		b, _ := json.Marshal(rv)
		return model.StringValue(string(b))
	}
}
