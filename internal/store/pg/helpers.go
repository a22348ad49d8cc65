package pg

import (
	"encoding/json"
	"time"
)

// nilStr maps empty strings to NULL so optional columns stay NULL
// instead of collecting empty values.
func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// jsonOrEmpty renders raw JSON for a JSONB column, defaulting absent
// values to the given empty literal ("{}" or "[]").
func jsonOrEmpty(raw json.RawMessage, empty string) []byte {
	if len(raw) == 0 {
		return []byte(empty)
	}
	return raw
}
