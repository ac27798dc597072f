package schema

import (
	"fmt"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// FieldSpec declares one field of a contract type's canonical shape.
type FieldSpec struct {
	Name     string
	Kind     model.FieldKind
	Required bool
	Items    []FieldSpec // element shape for list-kind fields
}

// Definition is the canonical field set for one contract type.
type Definition struct {
	ContractType  constants.ContractType
	SchemaVersion string
	Fields        []FieldSpec
}

// Field returns the spec for name, if declared.
func (d *Definition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Registry maps contract types to their definitions.
type Registry struct {
	defs map[constants.ContractType]*Definition
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{defs: make(map[constants.ContractType]*Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.ContractType] = d
	}
	return r
}

// Definition returns the definition for ct.
func (r *Registry) Definition(ct constants.ContractType) (*Definition, error) {
	d, ok := r.defs[ct]
	if !ok {
		return nil, fmt.Errorf("no schema defined for contract type %q", ct)
	}
	return d, nil
}

var lineItemFields = []FieldSpec{
	{Name: "description", Kind: model.KindString, Required: true},
	{Name: "quantity", Kind: model.KindNumber},
	{Name: "unit_price", Kind: model.KindNumber},
	{Name: "amount", Kind: model.KindNumber},
}

// DefaultRegistry returns the built-in contract type definitions.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Definition{
			ContractType:  constants.ContractVendor,
			SchemaVersion: "vendor_contract/v1",
			Fields: []FieldSpec{
				{Name: "company_name", Kind: model.KindString, Required: true},
				{Name: "counterparty", Kind: model.KindString},
				{Name: "effective_date", Kind: model.KindDate, Required: true},
				{Name: "expiry_date", Kind: model.KindDate},
				{Name: "total", Kind: model.KindNumber, Required: true},
				{Name: "currency_code", Kind: model.KindString},
				{Name: "payment_terms", Kind: model.KindString},
				{Name: "line_items", Kind: model.KindList, Items: lineItemFields},
			},
		},
		&Definition{
			ContractType:  constants.ContractServiceAgreement,
			SchemaVersion: "service_agreement/v1",
			Fields: []FieldSpec{
				{Name: "provider", Kind: model.KindString, Required: true},
				{Name: "client", Kind: model.KindString, Required: true},
				{Name: "effective_date", Kind: model.KindDate, Required: true},
				{Name: "termination_date", Kind: model.KindDate},
				{Name: "monthly_fee", Kind: model.KindNumber},
				{Name: "scope_of_services", Kind: model.KindString},
				{Name: "line_items", Kind: model.KindList, Items: lineItemFields},
			},
		},
		&Definition{
			ContractType:  constants.ContractPurchaseOrder,
			SchemaVersion: "purchase_order/v1",
			Fields: []FieldSpec{
				{Name: "po_number", Kind: model.KindString, Required: true},
				{Name: "vendor", Kind: model.KindString, Required: true},
				{Name: "order_date", Kind: model.KindDate, Required: true},
				{Name: "delivery_date", Kind: model.KindDate},
				{Name: "total", Kind: model.KindNumber, Required: true},
				{Name: "currency_code", Kind: model.KindString},
				{Name: "line_items", Kind: model.KindList, Items: lineItemFields},
			},
		},
		&Definition{
			ContractType:  constants.ContractNDA,
			SchemaVersion: "nda/v1",
			Fields: []FieldSpec{
				{Name: "disclosing_party", Kind: model.KindString, Required: true},
				{Name: "receiving_party", Kind: model.KindString, Required: true},
				{Name: "effective_date", Kind: model.KindDate, Required: true},
				{Name: "term_months", Kind: model.KindNumber},
				{Name: "governing_law", Kind: model.KindString},
			},
		},
	)
}

// BuildJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic
// map. It is passed to the model as a structured output constraint and used
// locally to validate the raw response.
func BuildJSONSchema(def *Definition) map[string]any {
	props := make(map[string]any, len(def.Fields))
	var required []string
	for _, f := range def.Fields {
		props[f.Name] = fieldProp(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldProp(f FieldSpec) map[string]any {
	switch f.Kind {
	case model.KindString:
		return map[string]any{"type": "string", "minLength": 1}
	case model.KindNumber:
		return map[string]any{"type": "number"}
	case model.KindDate:
		return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
	case model.KindList:
		itemProps := make(map[string]any, len(f.Items))
		var itemRequired []string
		for _, it := range f.Items {
			itemProps[it.Name] = fieldProp(it)
			if it.Required {
				itemRequired = append(itemRequired, it.Name)
			}
		}
		items := map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           itemProps,
		}
		if len(itemRequired) > 0 {
			items["required"] = itemRequired
		}
		return map[string]any{"type": "array", "items": items}
	default:
		return map[string]any{}
	}
}
