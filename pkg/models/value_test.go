package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{name: "same text", a: Text("Acme"), b: Text("Acme"), expected: true},
		{name: "different text", a: Text("Acme"), b: Text("Acme Corp"), expected: false},
		{name: "trimmed text", a: Text(" Acme "), b: Text("Acme"), expected: true},
		{name: "both empty", a: Value{}, b: Text("   "), expected: true},
		{name: "one empty", a: Value{}, b: Text("Acme"), expected: false},
		{name: "flags", a: Flag(false), b: Flag(false), expected: true},
		{name: "false flag is not empty", a: Flag(false), b: Value{}, expected: false},
		{name: "numbers", a: Number(10), b: Number(10.0), expected: true},
		{name: "kind mismatch", a: Text("10"), b: Number(10), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Equal(tt.b))
		})
	}
}

func TestValueJSON(t *testing.T) {
	fields := map[FieldName]Value{
		FieldLegalName:          Text("Acme Corp"),
		FieldDiversityCertified: Flag(true),
		FieldAnnualSpend:        Number(1250.5),
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"legal_name":"Acme Corp","diversity_certified":true,"annual_spend":1250.5}`, string(data))

	var decoded map[FieldName]Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, fields, decoded)

	var empty Value
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.True(t, empty.IsEmpty())
}

func TestValueCoerce(t *testing.T) {
	v, err := Text("true").Coerce(ValueKindFlag)
	require.NoError(t, err)
	assert.Equal(t, Flag(true), v)

	v, err = Text("42.5").Coerce(ValueKindNumber)
	require.NoError(t, err)
	assert.Equal(t, Number(42.5), v)

	v, err = Number(12345).Coerce(ValueKindText)
	require.NoError(t, err)
	assert.Equal(t, Text("12345"), v)

	_, err = Text("maybe").Coerce(ValueKindFlag)
	assert.Error(t, err)

	_, err = Flag(true).Coerce(ValueKindNumber)
	assert.Error(t, err)
}
