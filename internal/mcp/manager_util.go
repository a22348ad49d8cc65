package mcp

import (
	"encoding/json"
	"strings"
)

func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	return pairs
}

func joinErrors(errs []string) string {
	return strings.Join(errs, "; ")
}

// decodeJSONColumn unmarshals a JSONB column into T, returning the zero
// value on empty or malformed input. Server rows written by older
// versions may carry nulls here.
func decodeJSONColumn[T any](data []byte) T {
	var out T
	if len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero
	}
	return out
}

func jsonBytesToStringSlice(data []byte) []string {
	return decodeJSONColumn[[]string](data)
}

func jsonBytesToStringMap(data []byte) map[string]string {
	return decodeJSONColumn[map[string]string](data)
}
