package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/manifest"
	"github.com/zhuyongyong/crosswalk/internal/marker"
	"github.com/zhuyongyong/crosswalk/internal/version"
)

// Layout locates the runtime on disk.
type Layout struct {
	Root            string // installed runtime directory (holds runtime.yaml)
	BundledArchive  string // optional archive shipped with the host
	MarkerDir       string // directory of the local version marker
	RequiredVersion string
	Signer          string // expected signer fingerprint; empty skips the check
}

// DirProbe inspects a runtime installed in a directory.
type DirProbe struct {
	Layout Layout
}

// NewDirProbe returns a probe for layout.
func NewDirProbe(layout Layout) *DirProbe {
	return &DirProbe{Layout: layout}
}

// Inspect reports the state of the installed runtime. A bundled archive whose
// version has not been decompressed yet (per the local marker) yields
// FoundCompressed before the installed directory is looked at.
func (p *DirProbe) Inspect(ctx context.Context) Inspection {
	l := p.Layout
	insp := Inspection{Required: l.RequiredVersion}

	if err := ctx.Err(); err != nil {
		insp.Finding, insp.Err = FoundRuntimeError, err
		return insp
	}

	if l.BundledArchive != "" {
		compressed, err := p.needsDecompress()
		if err != nil {
			insp.Finding, insp.Err = FoundRuntimeError, err
			return insp
		}
		if compressed {
			insp.Finding, insp.Archive = FoundCompressed, l.BundledArchive
			return insp
		}
	}

	m, err := manifest.Load(l.Root, l.Signer)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		insp.Finding = FoundNotFound
		return insp
	case failure.KindOf(err) == failure.KindIntegrity:
		insp.Finding, insp.Err = FoundSignatureError, err
		return insp
	default:
		insp.Finding, insp.Err = FoundRuntimeError, fmt.Errorf("inspecting runtime at %s: %w", l.Root, err)
		return insp
	}

	insp.Manifest = m
	insp.Installed = m.Version
	switch version.Compare(m.Version, l.RequiredVersion) {
	case version.Older:
		insp.Finding = FoundOlderVersion
	case version.Newer:
		insp.Finding = FoundNewerVersion
	default:
		insp.Finding = FoundMatched
	}
	return insp
}

func (p *DirProbe) needsDecompress() (bool, error) {
	if _, err := os.Stat(p.Layout.BundledArchive); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking bundled archive: %w", err)
	}
	m, err := marker.Load(p.Layout.MarkerDir)
	if err != nil {
		return false, err
	}
	return !marker.Matches(m, p.Layout.RequiredVersion), nil
}
