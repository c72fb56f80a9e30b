// Package install applies a downloaded runtime package to the runtime
// directory.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/extract"
	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/logging"
	"github.com/zhuyongyong/crosswalk/internal/manifest"
	"github.com/zhuyongyong/crosswalk/internal/marker"
)

// MarkerSource is recorded in the version marker after an install.
const MarkerSource = "install"

// ArchiveInstaller unpacks a downloaded archive into Root. The package is
// verified against its manifest before it replaces the current runtime; the
// previous runtime is restored if the swap fails.
type ArchiveInstaller struct {
	Root      string
	MarkerDir string
	Signer    string
	// KeepArtifact leaves the downloaded archive on disk after a successful
	// install.
	KeepArtifact bool
	Log          *zap.Logger
}

// Install applies artifact. Integrity failures are failure.KindIntegrity.
func (i *ArchiveInstaller) Install(ctx context.Context, artifact string) error {
	log := logging.OrNop(i.Log)

	parent := filepath.Dir(i.Root)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(i.Root)+".install-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	applied := false
	defer func() {
		if !applied {
			os.RemoveAll(staging)
		}
	}()

	stats, err := extract.Unpack(ctx, artifact, staging, nil)
	if err != nil {
		return fmt.Errorf("unpacking %s: %w", filepath.Base(artifact), err)
	}

	m, err := manifest.Load(staging, i.Signer)
	if err != nil {
		if os.IsNotExist(err) {
			return failure.New(failure.KindIntegrity, "install", "package has no "+manifest.FileName)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := extract.Replace(staging, i.Root); err != nil {
		return err
	}
	applied = true

	if err := marker.Save(i.MarkerDir, &marker.Marker{
		Version: m.Version,
		Source:  MarkerSource,
		Path:    i.Root,
	}); err != nil {
		return err
	}

	if !i.KeepArtifact {
		if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
			log.Warn("Removing downloaded package failed", zap.String("archive", artifact), zap.Error(err))
		}
	}

	log.Info("Runtime installed",
		zap.String("version", m.Version),
		zap.String("root", i.Root),
		zap.Int("entries", stats.Entries))
	return nil
}
