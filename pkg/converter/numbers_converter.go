package converter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ConvertInterfaceToInt64 converts a decoded numeric value to int64. Floats must hold a
// whole number; numeric text is parsed.
func ConvertInterfaceToInt64(value any) (int64, error) {
	switch v := value.(type) {
	case float32:
		return wholeFloat(float64(v))
	case float64:
		return wholeFloat(v)
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return wholeFloat(f)
	case string:
		return ConvertInterfaceToInt64(json.Number(v))
	default:
		return 0, fmt.Errorf("unsupported type %T for conversion to int64", value)
	}
}

// FormatInt64 renders value as a base 10 integer, or reports why it cannot.
func FormatInt64(value any) (string, error) {
	i, err := ConvertInterfaceToInt64(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(i, 10), nil
}

func wholeFloat(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}
	return int64(f), nil
}
