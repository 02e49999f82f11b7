package helpers

import (
	"encoding/json"
	"strconv"
)

// IntToString converts int64 to its decimal string form.
func IntToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// ToJsonString converts any value to a JSON string, or "" on failure.
// Meant for debug logging only.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
