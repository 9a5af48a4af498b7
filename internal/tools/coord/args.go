package coord

import "fmt"

// requireString extracts a non-empty string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// optionalFloat64 extracts a number argument, returning fallback when absent.
func optionalFloat64(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// optionalBool extracts a boolean argument, false when absent.
func optionalBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// optionalStringPtr distinguishes an absent argument from a present one for
// partial updates.
func optionalStringPtr(args map[string]any, key string) *string {
	if v, ok := args[key].(string); ok {
		return &v
	}
	return nil
}

// stringList extracts an optional array-of-strings argument.
func stringList(args map[string]any, key string) ([]string, error) {
	raw, exists := args[key]
	if !exists || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings, got %T", key, raw)
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, it)
		}
		out = append(out, s)
	}
	return out, nil
}
