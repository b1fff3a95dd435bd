package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Sentinels is a set of upstream codes that mean "value not available".
type Sentinels map[string]struct{}

// NewSentinels builds a sentinel set from the given codes.
func NewSentinels(codes ...string) Sentinels {
	s := make(Sentinels, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether code is a sentinel.
func (s Sentinels) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// ParseFinite converts an upstream value to a finite float64.
// nil, sentinel codes, unparseable strings, NaN and Inf all report false.
func ParseFinite(raw interface{}, sentinels Sentinels) (float64, bool) {
	var v float64

	switch t := raw.(type) {
	case nil:
		return 0, false
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int32:
		v = float64(t)
	case int64:
		v = float64(t)
	case uint:
		v = float64(t)
	case uint32:
		v = float64(t)
	case uint64:
		v = float64(t)
	case json.Number:
		return parseFiniteString(t.String(), sentinels)
	case string:
		return parseFiniteString(t, sentinels)
	default:
		return 0, false
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	// Numeric sentinels arrive as JSON numbers too.
	if len(sentinels) > 0 && sentinels.Has(strconv.FormatFloat(v, 'f', -1, 64)) {
		return 0, false
	}
	return v, true
}

func parseFiniteString(s string, sentinels Sentinels) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if sentinels.Has(s) || sentinels.Has(trimmed) {
		return 0, false
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// AsInt converts a decoded JSON scalar to int.
func AsInt(raw interface{}) (int, bool) {
	switch t := raw.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		return 0, false
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
