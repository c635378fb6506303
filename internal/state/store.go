// Package state persists the durable event map as a single pretty-printed
// JSON document with sorted keys, written atomically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sguzman/rics/internal/event"
)

// Load reads the state file. A missing file is a fresh start; a present
// but unparseable file is an error, never a silent empty state.
func Load(path string) (*event.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return event.NewState(), nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var st event.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if st.Events == nil {
		st.Events = make(map[string]*event.Record)
	}
	return &st, nil
}

// Save writes the state to a temporary file and renames it into place.
// Map keys serialize sorted, so identical inputs produce identical bytes.
func Save(path string, st *event.State) error {
	if parent := filepath.Dir(path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory %s: %w", parent, err)
		}
	}

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	raw = append(raw, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", path, err)
	}
	return nil
}
