package scanner

import (
	"encoding/json"

	"qrattendance/internal/attendance"
)

// ResolveMode picks the mode for a decoded payload. A JSON object payload with
// a known "mode" wins; anything else, including text that is not JSON, keeps
// the selected mode.
func ResolveMode(decodedText string, selected attendance.Mode) attendance.Mode {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(decodedText), &payload); err != nil {
		return selected
	}
	raw, ok := payload["mode"]
	if !ok {
		return selected
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return selected
	}
	if m, ok := attendance.ParseMode(s); ok {
		return m
	}
	return selected
}
