// Package marker persists the local version marker: the version of the runtime
// last decompressed or installed by this host. The probe reads it back to
// decide whether a bundled archive still needs decompressing.
package marker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const fileName = "version-marker.json"

// Marker records a persisted runtime version.
type Marker struct {
	Version   string    `json:"version"`
	Source    string    `json:"source"` // "decompress" or "install"
	Path      string    `json:"path,omitempty"`
	WrittenAt time.Time `json:"written_at"`
}

// Load reads the marker from dir.
// Returns nil, nil if the marker file does not exist (first run).
func Load(dir string) (*Marker, error) {
	path := filepath.Join(dir, fileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading version marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing version marker: %w", err)
	}
	return &m, nil
}

// Save writes the marker to dir, replacing any previous one atomically.
func Save(dir string, m *Marker) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating marker directory: %w", err)
	}
	if m.WrittenAt.IsZero() {
		m.WrittenAt = time.Now()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling version marker: %w", err)
	}

	path := filepath.Join(dir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing version marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing version marker: %w", err)
	}
	return nil
}

// Clear removes the marker. A missing marker is not an error.
func Clear(dir string) error {
	err := os.Remove(filepath.Join(dir, fileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing version marker: %w", err)
	}
	return nil
}

// Matches reports whether m records exactly version.
func Matches(m *Marker, version string) bool {
	return m != nil && m.Version == version
}
