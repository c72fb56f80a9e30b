package manifest

// FileName is the manifest file at the root of an installed runtime.
const FileName = "runtime.yaml"

// RuntimeManifest describes an installed or packaged runtime.
type RuntimeManifest struct {
	Name        string      `yaml:"name" json:"name"`
	Version     string      `yaml:"version" json:"version"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Entrypoint  string      `yaml:"entrypoint" json:"entrypoint"`
	Signer      string      `yaml:"signer,omitempty" json:"signer,omitempty"`
	Platforms   []string    `yaml:"platforms,omitempty" json:"platforms,omitempty"`
	Files       []FileEntry `yaml:"files,omitempty" json:"files,omitempty"`
}

// FileEntry pins a packaged file to its SHA-256 digest.
type FileEntry struct {
	Path   string `yaml:"path" json:"path"`
	SHA256 string `yaml:"sha256" json:"sha256"`
}
