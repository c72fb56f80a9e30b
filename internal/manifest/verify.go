package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhuyongyong/crosswalk/internal/failure"
)

// Load reads, validates and verifies the manifest of the runtime rooted at dir.
// Schema violations, digest mismatches and a signer other than
// expectedSigner (when non-empty) are reported as failure.KindIntegrity.
// A missing manifest is returned as an error satisfying os.IsNotExist.
func Load(dir, expectedSigner string) (*RuntimeManifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result, err := Validate(data)
	if err != nil {
		return nil, failure.Wrap(failure.KindIntegrity, "validate manifest", err)
	}
	if !result.Valid {
		return nil, failure.New(failure.KindIntegrity, "validate manifest", result.Summary())
	}

	m, err := ParseBytes(data, path)
	if err != nil {
		return nil, failure.Wrap(failure.KindIntegrity, "parse manifest", err)
	}
	if err := Verify(dir, m, expectedSigner); err != nil {
		return nil, err
	}
	return m, nil
}

// Verify checks the signer and every declared file digest.
func Verify(dir string, m *RuntimeManifest, expectedSigner string) error {
	if expectedSigner != "" && normalizeFingerprint(m.Signer) != normalizeFingerprint(expectedSigner) {
		return failure.New(failure.KindIntegrity, "verify signer",
			fmt.Sprintf("runtime signed by %q, expected %q", m.Signer, expectedSigner))
	}

	for _, f := range m.Files {
		actual, err := FileDigest(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			return failure.Wrap(failure.KindIntegrity, "verify "+f.Path, err)
		}
		if actual != f.SHA256 {
			return failure.New(failure.KindIntegrity, "verify "+f.Path,
				fmt.Sprintf("checksum mismatch: expected %s, got %s", f.SHA256, actual))
		}
	}
	return nil
}

// FileDigest returns the hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("computing checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalizeFingerprint(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
}
