// Package money holds the numeric coercion policy applied to loosely typed
// line data. Malformed values never abort a sale; they degrade to defaults.
package money

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents bounds any single amount and any sale total. Larger magnitudes are
// treated as malformed input.
const MaxCents int64 = 1_000_000_000_000_000

var (
	maxCentsDecimal    = decimal.NewFromInt(MaxCents)
	maxQuantityDecimal = decimal.NewFromInt(math.MaxInt32)
)

// CoerceCents converts v to whole cents, rounding half away from zero.
// Anything that is not a finite number within ±MaxCents falls back to def.
func CoerceCents(v any, def int64) int64 {
	d, ok := toDecimal(v)
	if !ok {
		return def
	}
	d = d.Round(0)
	if d.Abs().GreaterThan(maxCentsDecimal) {
		return def
	}
	return d.IntPart()
}

// CoerceQuantity converts v to a positive integer quantity. Zero, negative,
// oversized and malformed values fall back to def.
func CoerceQuantity(v any, def int) int {
	d, ok := toDecimal(v)
	if !ok {
		return def
	}
	d = d.Round(0)
	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(maxQuantityDecimal) {
		return def
	}
	return int(d.IntPart())
}

// MulQty returns cents*qty, or false when the product leaves ±MaxCents.
func MulQty(cents int64, qty int) (int64, bool) {
	if cents == 0 || qty == 0 {
		return 0, true
	}
	q := int64(qty)
	if abs(cents) > MaxCents/abs(q) {
		return 0, false
	}
	return cents * q, true
}

// Add returns a+b, or false when the sum leaves ±MaxCents.
func Add(a int64, b int64) (int64, bool) {
	if abs(a) > MaxCents || abs(b) > MaxCents {
		return 0, false
	}
	sum := a + b
	if abs(sum) > MaxCents {
		return 0, false
	}
	return sum, true
}

func abs(v int64) int64 {
	if v == math.MinInt64 {
		return math.MaxInt64
	}
	if v < 0 {
		return -v
	}
	return v
}

// ApplyRate multiplies cents by a fractional rate and rounds to whole cents.
func ApplyRate(cents int64, rate float64) int64 {
	if cents == 0 || rate == 0 {
		return 0
	}
	return decimal.NewFromInt(cents).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return floatDecimal(float64(n))
	case float64:
		return floatDecimal(n)
	case json.Number:
		return parseDecimal(n.String())
	case string:
		return parseDecimal(n)
	case decimal.Decimal:
		return n, true
	default:
		return decimal.Zero, false
	}
}

func floatDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
