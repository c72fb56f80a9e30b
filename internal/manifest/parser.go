package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Parse reads a runtime manifest file.
func Parse(path string) (*RuntimeManifest, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data, path)
}

// ParseDir reads the runtime manifest at the root of dir.
func ParseDir(dir string) (*RuntimeManifest, error) {
	return Parse(filepath.Join(dir, FileName))
}

// ParseBytes unmarshals manifest YAML. path is only used in error messages.
func ParseBytes(data []byte, path string) (*RuntimeManifest, error) {
	var m RuntimeManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
