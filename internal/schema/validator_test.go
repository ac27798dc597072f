package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

func validVendorFields() model.FieldMap {
	return model.FieldMap{
		"company_name":   model.StringValue("Acme Corp"),
		"effective_date": model.DateValue("2026-01-15"),
		"total":          model.NumberValue(1200.50),
	}
}

func TestValidate_CleanCandidate(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	violations, err := v.Validate(constants.ContractVendor, validVendorFields())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidate_MissingRequired(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	fields := validVendorFields()
	delete(fields, "effective_date")

	violations, err := v.Validate(constants.ContractVendor, fields)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, MissingRequired, violations[0].Kind)
	assert.Equal(t, "effective_date", violations[0].Field)
}

func TestValidate_NullPlaceholderCountsAsMissing(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	fields := validVendorFields()
	fields["effective_date"] = model.NullValue(model.KindDate)

	violations, err := v.Validate(constants.ContractVendor, fields)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, MissingRequired, violations[0].Kind)
	assert.Equal(t, "effective_date", violations[0].Field)
}

func TestValidate_TypeMismatch(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	fields := validVendorFields()
	fields["total"] = model.StringValue("a lot")

	violations, err := v.Validate(constants.ContractVendor, fields)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, TypeMismatch, violations[0].Kind)
	assert.Equal(t, "total", violations[0].Field)
}

func TestValidate_UnknownFieldReportedNotDropped(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	fields := validVendorFields()
	fields["surprise"] = model.StringValue("unexpected")

	violations, err := v.Validate(constants.ContractVendor, fields)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, UnknownField, violations[0].Kind)
	assert.Equal(t, "surprise", violations[0].Field)
}

func TestValidate_ListItemViolationsCarryPaths(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	fields := validVendorFields()
	fields["line_items"] = model.ListValue([]model.FieldMap{
		{
			"description": model.StringValue("widgets"),
			"quantity":    model.NumberValue(3),
		},
		{
			// required description missing, quantity wrong kind, stray key
			"quantity": model.StringValue("three"),
			"colour":   model.StringValue("red"),
		},
	})

	violations, err := v.Validate(constants.ContractVendor, fields)
	require.NoError(t, err)

	byField := map[string]ViolationKind{}
	for _, viol := range violations {
		byField[viol.Field] = viol.Kind
	}
	assert.Equal(t, MissingRequired, byField["line_items[1].description"])
	assert.Equal(t, TypeMismatch, byField["line_items[1].quantity"])
	assert.Equal(t, UnknownField, byField["line_items[1].colour"])
}

func TestValidate_OutputSortedByField(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	violations, err := v.Validate(constants.ContractVendor, model.FieldMap{
		"zebra": model.StringValue("?"),
		"alpha": model.StringValue("?"),
	})
	require.NoError(t, err)
	require.True(t, len(violations) >= 2)
	for i := 1; i < len(violations); i++ {
		assert.LessOrEqual(t, violations[i-1].Field, violations[i].Field)
	}
}

func TestValidate_UnknownContractType(t *testing.T) {
	v := NewValidator(DefaultRegistry())
	_, err := v.Validate(constants.ContractUnknown, validVendorFields())
	assert.Error(t, err)
}

func TestBuildJSONSchema_RequiredAndItems(t *testing.T) {
	reg := DefaultRegistry()
	def, err := reg.Definition(constants.ContractVendor)
	require.NoError(t, err)

	m := BuildJSONSchema(def)
	assert.Equal(t, "object", m["type"])

	required, ok := m["required"].([]string)
	require.True(t, ok)
	assert.Contains(t, required, "company_name")
	assert.Contains(t, required, "effective_date")
	assert.Contains(t, required, "total")
	assert.NotContains(t, required, "line_items")

	props := m["properties"].(map[string]any)
	items := props["line_items"].(map[string]any)
	assert.Equal(t, "array", items["type"])
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	reg := DefaultRegistry()
	def, err := reg.Definition(constants.ContractNDA)
	require.NoError(t, err)
	sch := BuildJSONSchema(def)

	good := []byte(`{"disclosing_party":"Acme","receiving_party":"Beta","effective_date":"2026-02-01"}`)
	assert.NoError(t, ValidateJSONAgainstSchema(sch, good))

	bad := []byte(`{"disclosing_party":"Acme"}`)
	assert.Error(t, ValidateJSONAgainstSchema(sch, bad))
}
