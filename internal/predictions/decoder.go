package predictions

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decoder turns a response body into raw entries. A decode error makes the
// attempt retryable.
type Decoder interface {
	Decode(body []byte) ([]RawEntry, error)
}

// JSONCollection decodes a JSON object and returns the array stored under Key.
// A missing or null collection is an empty result, not an error.
type JSONCollection struct {
	Key string
}

func (d JSONCollection) Decode(body []byte) ([]RawEntry, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prediction response: %w", err)
	}

	raw, ok := doc[d.Key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []RawEntry{}, nil
	}

	var entries []RawEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %q collection: %w", d.Key, err)
	}
	if entries == nil {
		entries = []RawEntry{}
	}
	return entries, nil
}
