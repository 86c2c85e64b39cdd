package normalize

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeRating accepts a number or numeric string on a 5, 10, or 100
// point scale and returns a 0.0-5.0 rating rounded to one decimal.
// Values in (5,10] are halved, values in (10,100] divided by 20.
// Out-of-range or non-numeric inputs fail.
func NormalizeRating(input interface{}) (float64, bool) {
	var v float64
	switch x := input.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}

	switch {
	case v < 0:
		return 0, false
	case v <= 5:
		// as-is
	case v <= 10:
		v = v / 2
	case v <= 100:
		v = v / 20
	default:
		return 0, false
	}

	return round1(clamp(v, 0, 5)), true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
