// Package model is the canonical extraction data model, shared by the schema
// registry and the extraction pipeline.
package model

import "encoding/json"

// FieldKind enumerates the shapes a field value may take.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date" // YYYY-MM-DD
	KindList   FieldKind = "list" // nested entities, e.g. line items
)

// FieldValue is a tagged variant over {string, number, date, list-of-entity}.
// Exactly one member is meaningful for a given Kind.
type FieldValue struct {
	Kind FieldKind  `json:"kind"`
	Str  string     `json:"str,omitempty"`
	Num  float64    `json:"num,omitempty"`
	Date string     `json:"date,omitempty"` // YYYY-MM-DD
	List []FieldMap `json:"list,omitempty"`
	Null bool       `json:"null,omitempty"` // required field present but unknown
}

// FieldMap is an unordered mapping of field name to value, used for nested
// list entries and as the raw candidate shape handed to the validator.
type FieldMap map[string]FieldValue

// StringValue builds a string-kind FieldValue.
func StringValue(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }

// NumberValue builds a number-kind FieldValue.
func NumberValue(f float64) FieldValue { return FieldValue{Kind: KindNumber, Num: f} }

// DateValue builds a date-kind FieldValue.
func DateValue(d string) FieldValue { return FieldValue{Kind: KindDate, Date: d} }

// ListValue builds a list-kind FieldValue.
func ListValue(items []FieldMap) FieldValue { return FieldValue{Kind: KindList, List: items} }

// NullValue builds a placeholder for a required field with no known value.
func NullValue(kind FieldKind) FieldValue { return FieldValue{Kind: kind, Null: true} }

// Equal reports whether two values are identical in kind and content.
func (v FieldValue) Equal(o FieldValue) bool {
	a, _ := json.Marshal(v)
	b, _ := json.Marshal(o)
	return string(a) == string(b)
}
