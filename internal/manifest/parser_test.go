package manifest

import (
	"path/filepath"
	"testing"
)

const testdataDir = "testdata"

func testPath(name string) string {
	return filepath.Join(testdataDir, name)
}

func TestParse(t *testing.T) {
	m, err := Parse(testPath("valid-runtime.yaml"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if m.Name != "xwalk-core" {
		t.Errorf("Name = %q, want %q", m.Name, "xwalk-core")
	}
	if m.Version != "23.53.589.4" {
		t.Errorf("Version = %q, want %q", m.Version, "23.53.589.4")
	}
	if m.Entrypoint != "bin/xwalk" {
		t.Errorf("Entrypoint = %q", m.Entrypoint)
	}
	if len(m.Files) != 1 || m.Files[0].Path != "bin/xwalk" {
		t.Errorf("Files = %+v", m.Files)
	}
	if len(m.Platforms) != 2 {
		t.Errorf("Platforms = %v", m.Platforms)
	}
}

func TestParse_NotFound(t *testing.T) {
	if _, err := Parse(testPath("nonexistent.yaml")); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse(testPath("invalid-not-yaml.yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
