package encode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	testCases := []struct {
		name      string
		fieldType string
		raw       any
		expected  string
	}{
		{"text is quoted", "string", "Acme", `"Acme"`},
		{"embedded quotes are doubled", "textarea", `say "hi"`, `"say ""hi"""`},
		{"NUL bytes are stripped", "string", "a\x00b", `"ab"`},
		{"empty text stays quoted", "string", "", `""`},
		{"null text is empty", "string", nil, ``},
		{"identifier", "id", "001000000000001AAA", `"001000000000001AAA"`},
		{"reference", "reference", "005000000000001AAA", `"005000000000001AAA"`},
		{"picklist with comma", "picklist", "a,b", `"a,b"`},
		{"anyType number", "anyType", json.Number("42"), `"42"`},
		{"integer", "int", json.Number("42"), `42`},
		{"integer sent as float", "int", json.Number("42.0"), `42`},
		{"integer from float64", "int", float64(7), `7`},
		{"fractional integer is not rounded", "int", json.Number("1.5"), `1.5`},
		{"fractional float64 integer is not rounded", "int", 2.5, `2.5`},
		{"integer beyond int64 keeps its text", "int", json.Number("92233720368547758070"), `92233720368547758070`},
		{"null integer", "int", nil, ``},
		{"currency keeps its text", "currency", json.Number("12.50"), `12.50`},
		{"double from float64", "double", 0.1, `0.1`},
		{"percent", "percent", json.Number("-3.75"), `-3.75`},
		{"null numeric", "double", nil, ``},
		{"date passthrough", "date", "2024-01-01", `2024-01-01`},
		{"datetime passthrough", "datetime", "2024-01-01T00:00:01.000+0000", `2024-01-01T00:00:01.000+0000`},
		{"time passthrough", "time", "10:15:00.000Z", `10:15:00.000Z`},
		{"null datetime", "datetime", nil, ``},
		{"true", "boolean", true, `t`},
		{"false", "boolean", false, `f`},
		{"boolean from text", "boolean", "true", `t`},
		{"null boolean", "boolean", nil, ``},
		{"unsupported type", "address", map[string]any{"city": "Paris"}, `"address NOT IMPLEMENTED"`},
		{"unsupported null", "base64", nil, `"base64 NOT IMPLEMENTED"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Encode(tc.fieldType, tc.raw))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("string"))
	assert.True(t, Supported("boolean"))
	assert.False(t, Supported("location"))
	assert.False(t, Supported(""))
}
