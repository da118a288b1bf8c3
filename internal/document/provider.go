// Package document is the thin boundary to the document collaborator.
// The core never parses documents itself; it only consumes metadata
// snapshots.
package document

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/slatecast/slatecast/internal/state"
)

// Provider supplies the current document snapshot used to seed initial
// client sync.
type Provider interface {
	Current() state.DocumentState
}

// Manifest is the JSON sidecar describing a presentable document.
type Manifest struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
	Pages int    `json:"pages"`
}

// LoadManifest reads a document manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Pages < 1 {
		return nil, fmt.Errorf("manifest %s: page count must be positive", path)
	}
	return &m, nil
}

// StaticProvider returns a fixed snapshot. The empty value describes
// "no document open" and is the default seed for a fresh session.
type StaticProvider struct {
	Snapshot state.DocumentState
}

// Current returns the provider's snapshot.
func (p StaticProvider) Current() state.DocumentState {
	if !p.Snapshot.Loaded {
		return state.DocumentState{CurrentPage: 1, Zoom: 1.0}
	}
	return p.Snapshot
}
