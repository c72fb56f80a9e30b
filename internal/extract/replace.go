package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ExtractTo unpacks archive into a staging directory beside dest, then
// swaps it into place with Replace. On any error the staging directory is
// removed and dest is unchanged.
func ExtractTo(ctx context.Context, archive, dest string, progress Progress) (Stats, error) {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return Stats{}, fmt.Errorf("creating %s: %w", parent, err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".staging-")
	if err != nil {
		return Stats{}, fmt.Errorf("creating staging directory: %w", err)
	}

	stats, err := Unpack(ctx, archive, staging, progress)
	if err == nil && ctx.Err() != nil {
		err = ErrCancelled
	}
	if err != nil {
		os.RemoveAll(staging)
		return stats, err
	}

	if err := Replace(staging, dest); err != nil {
		os.RemoveAll(staging)
		return stats, err
	}
	return stats, nil
}

// Replace moves the directory src to dest. An existing dest is kept as a
// backup until the move succeeds and restored if it fails.
func Replace(src, dest string) error {
	backup := dest + ".backup"
	os.RemoveAll(backup)

	hadDest := true
	if err := os.Rename(dest, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("creating backup: %w", err)
		}
		hadDest = false
	}

	if err := os.Rename(src, dest); err != nil {
		if hadDest {
			if rbErr := Rollback(backup, dest); rbErr != nil {
				return fmt.Errorf("installing %s: %w (%v)", dest, err, rbErr)
			}
		}
		return fmt.Errorf("installing %s: %w", dest, err)
	}

	if hadDest {
		os.RemoveAll(backup)
	}
	return nil
}

// Rollback restores the backup to dest.
func Rollback(backup, dest string) error {
	os.RemoveAll(dest)
	if err := os.Rename(backup, dest); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
