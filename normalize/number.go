package normalize

import (
	"math"
	"strconv"
	"strings"
)

// Price converts numeric text to a non-negative value. Empty, "null",
// unparseable and negative inputs return nil so absence is never read as zero.
func Price(text string) *float64 {
	s := strings.TrimSpace(text)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
