package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/zhuyongyong/crosswalk/internal/platform"
)

// Format is an archive container and compression pair.
type Format int

const (
	FormatUnknown Format = iota
	FormatTarGz
	FormatTarZst
	FormatZip
)

func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatTarZst:
		return "tar.zst"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// DetectFormat picks the format from the archive file name.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	default:
		return FormatUnknown, fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
	}
}

// ErrCancelled is returned when extraction stops because it was cancelled.
var ErrCancelled = errors.New("extraction cancelled")

// Stats counts what an extraction wrote.
type Stats struct {
	Entries int
	Bytes   int64
}

// Progress is called after each extracted entry.
type Progress func(entries int, name string)

// Unpack extracts archive into dir, which must exist. It stops with
// ErrCancelled between entries and between copy chunks once ctx is done.
func Unpack(ctx context.Context, archive, dir string, progress Progress) (Stats, error) {
	format, err := DetectFormat(archive)
	if err != nil {
		return Stats{}, err
	}
	u := &unpacker{ctx: ctx, dir: dir, progress: progress}

	switch format {
	case FormatZip:
		err = u.zip(archive)
	default:
		err = u.tar(archive, format)
	}
	return u.stats, err
}

type unpacker struct {
	ctx      context.Context
	dir      string
	progress Progress
	stats    Stats
}

func (u *unpacker) cancelled() error {
	if u.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (u *unpacker) entryDone(name string) {
	u.stats.Entries++
	if u.progress != nil {
		u.progress(u.stats.Entries, name)
	}
}

func (u *unpacker) tar(archive string, format Format) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		if err := u.cancelled(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := safeJoin(u.dir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := u.writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := u.symlink(target, hdr.Linkname); err != nil {
				return fmt.Errorf("linking %s: %w", hdr.Name, err)
			}
		default:
			// Devices, fifos and hard links have no place in a runtime package.
			continue
		}
		u.entryDone(hdr.Name)
	}
}

func (u *unpacker) zip(archive string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := u.cancelled(); err != nil {
			return err
		}
		target, err := safeJoin(u.dir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", f.Name, err)
			}
		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("opening zip entry: %w", err)
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return fmt.Errorf("reading link %s: %w", f.Name, err)
			}
			if err := u.symlink(target, string(link)); err != nil {
				return fmt.Errorf("linking %s: %w", f.Name, err)
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("opening zip entry: %w", err)
			}
			err = u.writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return fmt.Errorf("extracting %s: %w", f.Name, err)
			}
		}
		u.entryDone(f.Name)
	}
	return nil
}

func (u *unpacker) writeFile(target string, r io.Reader, perm os.FileMode) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, &ctxReader{ctx: u.ctx, r: r})
	u.stats.Bytes += n
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile applies the umask; restore the archived bits.
	return platform.Chmod(target, perm)
}

func (u *unpacker) symlink(target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute link target %q", linkname)
	}
	rel, err := filepath.Rel(u.dir, filepath.Join(filepath.Dir(target), linkname))
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("link target %q escapes the archive", linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return platform.CreateSymlink(linkname, target)
}

// safeJoin resolves an archive entry name under dir, rejecting names that
// would land outside it.
func safeJoin(dir, name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if clean == "" || clean == "." {
		return dir, nil
	}
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return filepath.Join(dir, clean), nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, ErrCancelled
	}
	return c.r.Read(p)
}
