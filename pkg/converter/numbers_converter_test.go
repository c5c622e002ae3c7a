package converter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ConvertToInt64TestData struct {
	name        string
	input       any
	expected    int64
	expectError bool
	errorMsg    string
}

func TestConvertInterfaceToInt64(t *testing.T) {
	tests := []ConvertToInt64TestData{
		{name: "float32 input", input: float32(42.0), expected: 42},
		{name: "float64 input", input: float64(42.0), expected: 42},
		{name: "int32 input", input: int32(42), expected: 42},
		{name: "int input", input: 42, expected: 42},
		{name: "int64 input", input: int64(-7), expected: -7},
		{name: "json integer", input: json.Number("9007199254740993"), expected: 9007199254740993},
		{name: "json whole float", input: json.Number("12.0"), expected: 12},
		{name: "numeric text", input: "15", expected: 15},
		{
			name:        "fractional float",
			input:       1.5,
			expectError: true,
			errorMsg:    "1.5 is not a whole number",
		},
		{
			name:        "fractional json number",
			input:       json.Number("2.25"),
			expectError: true,
			errorMsg:    "2.25 is not a whole number",
		},
		{
			name:        "not a number",
			input:       "abc",
			expectError: true,
			errorMsg:    `invalid number "abc"`,
		},
		{
			name:        "unsupported type",
			input:       true,
			expectError: true,
			errorMsg:    "unsupported type bool for conversion to int64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ConvertInterfaceToInt64(tt.input)
			if tt.expectError {
				assert.ErrorContains(t, err, tt.errorMsg)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatInt64(t *testing.T) {
	s, err := FormatInt64(json.Number("42"))
	assert.NoError(t, err)
	assert.Equal(t, "42", s)

	_, err = FormatInt64(json.Number("4.2"))
	assert.Error(t, err)
}
