package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/joseph-ayodele/contracts-desk/constants"
)

// ExtractedEntity is a single structured field with its provenance tag.
type ExtractedEntity struct {
	Name       string               `json:"name"`
	Value      FieldValue           `json:"value"`
	Provenance constants.Provenance `json:"provenance"`
}

// ExtractionResult is an ordered mapping from field name to entity, plus a
// schema version and a generation counter incremented on every extraction
// pass. Results are immutable after creation; corrections always produce a
// new generation.
type ExtractionResult struct {
	ContractType  constants.ContractType `json:"contract_type"`
	SchemaVersion string                 `json:"schema_version"`
	Generation    int                    `json:"generation"`
	Fields        []ExtractedEntity      `json:"fields"`
	ExtractedAt   time.Time              `json:"extracted_at"`
}

// NewResult builds a result with fields ordered by name.
func NewResult(ct constants.ContractType, schemaVersion string, generation int, fields FieldMap, provenance map[string]constants.Provenance) *ExtractionResult {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	out := &ExtractionResult{
		ContractType:  ct,
		SchemaVersion: schemaVersion,
		Generation:    generation,
		Fields:        make([]ExtractedEntity, 0, len(names)),
		ExtractedAt:   time.Now().UTC(),
	}
	for _, n := range names {
		prov := constants.ProvenanceModel
		if p, ok := provenance[n]; ok {
			prov = p
		}
		out.Fields = append(out.Fields, ExtractedEntity{Name: n, Value: fields[n], Provenance: prov})
	}
	return out
}

// Get returns the entity for name, if present.
func (r *ExtractionResult) Get(name string) (ExtractedEntity, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ExtractedEntity{}, false
}

// AsFieldMap flattens the ordered fields into a candidate map for validation.
func (r *ExtractionResult) AsFieldMap() FieldMap {
	m := make(FieldMap, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// Provenances returns the per-field provenance tags.
func (r *ExtractionResult) Provenances() map[string]constants.Provenance {
	m := make(map[string]constants.Provenance, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Provenance
	}
	return m
}

// Clone returns a deep copy. History snapshots hand out clones so stored
// entries can never be mutated through a returned reference.
func (r *ExtractionResult) Clone() *ExtractionResult {
	if r == nil {
		return nil
	}
	b, _ := json.Marshal(r)
	var out ExtractionResult
	_ = json.Unmarshal(b, &out)
	return &out
}
