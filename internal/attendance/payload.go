package attendance

import (
	"encoding/json"
	"strings"
)

// ParseCardNumber extracts the card number from a scanned payload. The payload
// must be a JSON object carrying a non-empty string "id".
func ParseCardNumber(qrData string) (string, error) {
	var payload struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(qrData)), &payload); err != nil {
		return "", ErrInvalidPayload
	}
	var id string
	if err := json.Unmarshal(payload.ID, &id); err != nil {
		// numeric card numbers are printed without quotes on older cards
		var n json.Number
		if err := json.Unmarshal(payload.ID, &n); err != nil {
			return "", ErrInvalidPayload
		}
		id = n.String()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidPayload
	}
	return id, nil
}
