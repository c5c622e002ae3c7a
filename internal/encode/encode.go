// Package encode turns remote field values into the textual rows the bulk loader reads:
// comma separated, double quotes around text, and an unquoted empty column for null.
package encode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"crm-sync/pkg/converter"
)

const (
	separator   = ","
	notImplFmt  = `"%s NOT IMPLEMENTED"`
	trueValue   = "t"
	falseValue  = "f"
	nullValue   = ""
	quoteChar   = `"`
	escapeQuote = `""`
)

type kind int

const (
	kindUnsupported kind = iota
	kindText
	kindInteger
	kindNumeric
	kindTemporal
	kindBoolean
)

//nolint:gochecknoglobals
var kinds = map[string]kind{
	"id":              kindText,
	"string":          kindText,
	"picklist":        kindText,
	"multipicklist":   kindText,
	"combobox":        kindText,
	"reference":       kindText,
	"phone":           kindText,
	"email":           kindText,
	"url":             kindText,
	"textarea":        kindText,
	"encryptedstring": kindText,
	"anyType":         kindText,
	"int":             kindInteger,
	"currency":        kindNumeric,
	"double":          kindNumeric,
	"percent":         kindNumeric,
	"date":            kindTemporal,
	"datetime":        kindTemporal,
	"time":            kindTemporal,
	"boolean":         kindBoolean,
}

// Supported reports whether values of fieldType have a real encoding.
func Supported(fieldType string) bool {
	return kinds[fieldType] != kindUnsupported
}

// Encode renders one raw remote value of the given remote type as a loader column.
func Encode(fieldType string, raw any) string {
	k := kinds[fieldType]
	if k == kindUnsupported {
		return fmt.Sprintf(notImplFmt, fieldType)
	}
	if raw == nil {
		return nullValue
	}

	switch k {
	case kindText:
		return quote(text(raw))
	case kindInteger:
		return integer(raw)
	case kindNumeric:
		return numeric(raw)
	case kindTemporal:
		return text(raw)
	case kindBoolean:
		return boolean(raw)
	}
	return fmt.Sprintf(notImplFmt, fieldType)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return quoteChar + strings.ReplaceAll(s, quoteChar, escapeQuote) + quoteChar
}

func text(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// integer renders whole numbers in base 10. Anything else keeps its remote text so the
// database rejects it rather than a silently rounded value being stored.
func integer(raw any) string {
	if s, err := converter.FormatInt64(raw); err == nil {
		return s
	}
	switch v := raw.(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return text(raw)
	}
}

func numeric(raw any) string {
	switch v := raw.(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return integer(raw)
	}
}

func boolean(raw any) string {
	switch v := raw.(type) {
	case bool:
		if v {
			return trueValue
		}
		return falseValue
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return boolean(b)
		}
	}
	return fmt.Sprintf(notImplFmt, fmt.Sprintf("boolean(%T)", raw))
}
