package audit

import (
	"fmt"
	"math"
	"strings"
)

// requireString extracts a non-empty, trimmed string from args by key.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// optionalString extracts a trimmed string from args by key, "" if absent.
func optionalString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// optionalInt extracts a whole number from args by key, returning fallback if
// not present. JSON numbers arrive as float64; fractional or wrong-typed
// values are an error rather than silently truncated.
func optionalInt(args map[string]any, key string, fallback int) (int, error) {
	v, exists := args[key]
	if !exists || v == nil {
		return fallback, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s must be a non-negative whole number, got %v", key, f)
	}
	return int(f), nil
}
