package parser

import (
	"encoding/json"
	"strings"
)

// AddonManifest is the subset of an addon manifest the core reads.
type AddonManifest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Types       []string `json:"types"`
}

// ParseAddonManifest decodes a manifest. A manifest without a name is
// rejected since it is the only field the core relies on.
func ParseAddonManifest(data []byte) (AddonManifest, error) {
	var m AddonManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return AddonManifest{}, ParseError{Field: "manifest", Msg: err.Error()}
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return AddonManifest{}, ParseError{Field: "name", Msg: "manifest has no name"}
	}
	return m, nil
}
