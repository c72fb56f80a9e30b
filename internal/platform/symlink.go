package platform

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// CreateSymlink creates link pointing to target. A relative target is
// resolved against the directory of link, the way the OS resolves it.
//
// On Windows, os.Symlink needs developer mode. Without it the target file is
// copied to link instead, which is enough for the runtime's library aliases.
func CreateSymlink(target, link string) error {
	err := os.Symlink(target, link)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}

	if cerr := copyTarget(resolveTarget(target, link), link); cerr != nil {
		return fmt.Errorf("symlink %s: %w (copy fallback: %v)", link, err, cerr)
	}
	return nil
}

func resolveTarget(target, link string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(link), target)
}

func copyTarget(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
