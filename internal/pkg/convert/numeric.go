// Package convert provides numeric conversion and display helpers.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseFloat converts a decoded JSON or form value to float64.
func ParseFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("value is null")
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value is not finite")
	}
	return f, nil
}

// ToFloat64 is ParseFloat with failures mapped to 0.
func ToFloat64(v any) float64 {
	f, err := ParseFloat(v)
	if err != nil {
		return 0
	}
	return f
}

// FormatPercent renders a probability in [0,1] as "xx.xx%".
func FormatPercent(p float64) string {
	return Percent(p).StringFixed(2) + "%"
}

// Percent returns p*100 rounded half away from zero to two places.
func Percent(p float64) decimal.Decimal {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(p).Mul(decimal.NewFromInt(100)).Round(2)
}

// RoundFloat rounds v to places decimals for display.
func RoundFloat(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
