package store

import (
	"encoding/json"
	"fmt"

	"github.com/voyagen/vaulttv/internal/models"
)

// Preferences are stored one row per field so new fields default cleanly
// for rows written by older versions.

func encodePreferences(p models.Preferences) (map[string]json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode preferences: %w", err)
	}
	return fields, nil
}

func decodePreferences(fields map[string]json.RawMessage) (models.Preferences, error) {
	p := models.DefaultPreferences()
	if len(fields) == 0 {
		return p, nil
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return p, fmt.Errorf("decode preferences: %w", err)
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("decode preferences: %w", err)
	}
	return p, nil
}
