package fixture

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
)

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func floatOr(v any, def float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

func toInt(v any, def int) int {
	f, ok := toFloat(v)
	if !ok || math.IsInf(f, 0) {
		return def
	}
	return int(math.Round(f))
}

func stringOf(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func lerp(a, b int, t float64) int {
	return int(math.Round(float64(a) + float64(b-a)*t))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func unknownKeys(data map[string]any, allowed ...string) []string {
	var out []string
	for _, k := range sortedKeys(data) {
		if !slices.Contains(allowed, k) {
			out = append(out, k)
		}
	}
	return out
}
