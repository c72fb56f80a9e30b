package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/manifest"
	"github.com/zhuyongyong/crosswalk/internal/marker"
)

const script = "#!/bin/sh\necho \"runtime $XWALK_RUNTIME_VERSION $GREETING $*\"\nexit ${EXIT_CODE:-0}\n"

// installRuntime writes a runtime with the given version into a temp dir.
func installRuntime(t *testing.T, ver string, extra string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "xwalk"), []byte(script), 0755))

	digest, err := manifest.FileDigest(filepath.Join(root, "bin", "xwalk"))
	require.NoError(t, err)

	m := fmt.Sprintf("name: xwalk-core\nversion: %q\nentrypoint: bin/xwalk\n%sfiles:\n  - path: bin/xwalk\n    sha256: %s\n",
		ver, extra, digest)
	require.NoError(t, os.WriteFile(filepath.Join(root, manifest.FileName), []byte(m), 0644))
	return root
}

func TestDirProbe_Findings(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		p := NewDirProbe(Layout{Root: filepath.Join(t.TempDir(), "missing"), RequiredVersion: "1.0"})
		insp := p.Inspect(ctx)
		assert.Equal(t, FoundNotFound, insp.Finding)
		assert.NoError(t, insp.Err)
	})

	t.Run("matched", func(t *testing.T) {
		p := NewDirProbe(Layout{Root: installRuntime(t, "1.0", ""), RequiredVersion: "1.0"})
		insp := p.Inspect(ctx)
		assert.Equal(t, FoundMatched, insp.Finding)
		assert.Equal(t, "1.0", insp.Installed)
		require.NotNil(t, insp.Manifest)
	})

	t.Run("older", func(t *testing.T) {
		p := NewDirProbe(Layout{Root: installRuntime(t, "0.9", ""), RequiredVersion: "1.0"})
		assert.Equal(t, FoundOlderVersion, p.Inspect(ctx).Finding)
	})

	t.Run("newer", func(t *testing.T) {
		p := NewDirProbe(Layout{Root: installRuntime(t, "23.53.589.4", ""), RequiredVersion: "22.52.561.4"})
		assert.Equal(t, FoundNewerVersion, p.Inspect(ctx).Finding)
	})

	t.Run("signature error", func(t *testing.T) {
		root := installRuntime(t, "1.0", "")
		require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "xwalk"), []byte("tampered"), 0755))

		insp := NewDirProbe(Layout{Root: root, RequiredVersion: "1.0"}).Inspect(ctx)
		assert.Equal(t, FoundSignatureError, insp.Finding)
		assert.True(t, errors.Is(insp.Err, failure.ErrIntegrity))
	})

	t.Run("wrong signer", func(t *testing.T) {
		root := installRuntime(t, "1.0", "signer: \"AB:CD:EF:01:23:45:67:89\"\n")
		insp := NewDirProbe(Layout{Root: root, RequiredVersion: "1.0", Signer: "0000000000000000"}).Inspect(ctx)
		assert.Equal(t, FoundSignatureError, insp.Finding)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		insp := NewDirProbe(Layout{Root: t.TempDir(), RequiredVersion: "1.0"}).Inspect(cctx)
		assert.Equal(t, FoundRuntimeError, insp.Finding)
	})
}

func TestDirProbe_BundledArchive(t *testing.T) {
	ctx := context.Background()
	archive := filepath.Join(t.TempDir(), "xwalk.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("archive"), 0644))
	markerDir := t.TempDir()
	root := installRuntime(t, "1.0", "")

	layout := Layout{Root: root, BundledArchive: archive, MarkerDir: markerDir, RequiredVersion: "1.0"}

	insp := NewDirProbe(layout).Inspect(ctx)
	assert.Equal(t, FoundCompressed, insp.Finding)
	assert.Equal(t, archive, insp.Archive)

	// Stale marker still needs decompressing.
	require.NoError(t, marker.Save(markerDir, &marker.Marker{Version: "0.9", Source: "decompress"}))
	assert.Equal(t, FoundCompressed, NewDirProbe(layout).Inspect(ctx).Finding)

	require.NoError(t, marker.Save(markerDir, &marker.Marker{Version: "1.0", Source: "decompress"}))
	assert.Equal(t, FoundMatched, NewDirProbe(layout).Inspect(ctx).Finding)

	// Archive gone: fall through to the installed runtime.
	require.NoError(t, os.Remove(archive))
	require.NoError(t, marker.Clear(markerDir))
	assert.Equal(t, FoundMatched, NewDirProbe(layout).Inspect(ctx).Finding)
}

func TestHolder(t *testing.T) {
	var h Holder
	_, ok := h.Handle()
	assert.False(t, ok)

	require.NoError(t, h.Init(&Handle{Version: "1.0"}))
	assert.ErrorIs(t, h.Init(&Handle{Version: "2.0"}), ErrAlreadyInitialized)

	got, ok := h.Handle()
	require.True(t, ok)
	assert.Equal(t, "1.0", got.Version)

	h.Reset()
	_, ok = h.Handle()
	assert.False(t, ok)
	assert.NoError(t, h.Init(&Handle{Version: "2.0"}))
}

func TestDirInitializer(t *testing.T) {
	root := installRuntime(t, "1.0", "")
	require.NoError(t, os.WriteFile(filepath.Join(root, EnvFileName), []byte("GREETING=hello\n"), 0644))

	h, err := (&DirInitializer{Root: root}).Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", h.Version)
	assert.Equal(t, filepath.Join(root, "bin", "xwalk"), h.Entrypoint)
	assert.Equal(t, "hello", h.Env["GREETING"])
	assert.False(t, h.InitializedAt.IsZero())
}

func TestDirInitializer_Failures(t *testing.T) {
	t.Run("missing runtime", func(t *testing.T) {
		_, err := (&DirInitializer{Root: t.TempDir()}).Initialize(context.Background())
		assert.True(t, errors.Is(err, failure.ErrRuntimeInit))
	})

	t.Run("unsupported platform", func(t *testing.T) {
		root := installRuntime(t, "1.0", "platforms:\n  - plan9/mips\n")
		_, err := (&DirInitializer{Root: root}).Initialize(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrRuntimeInit))
		assert.Contains(t, err.Error(), "does not support")
	})

	t.Run("supported platform", func(t *testing.T) {
		root := installRuntime(t, "1.0", fmt.Sprintf("platforms:\n  - %s/%s\n", goruntime.GOOS, goruntime.GOARCH))
		_, err := (&DirInitializer{Root: root}).Initialize(context.Background())
		assert.NoError(t, err)
	})
}

func TestRunner_Run(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("shell entrypoint not supported on Windows")
	}
	root := installRuntime(t, "1.0", "")
	h, err := (&DirInitializer{Root: root}).Initialize(context.Background())
	require.NoError(t, err)
	h.Env["GREETING"] = "hi"

	var stdout, stderr bytes.Buffer
	r := &Runner{Stdout: &stdout, Stderr: &stderr}

	out, err := r.Run(context.Background(), h, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "runtime 1.0 hi a b\n", out.Stdout)
	assert.Equal(t, out.Stdout, stdout.String())

	h.Env["EXIT_CODE"] = "42"
	out, err = r.Run(context.Background(), h, nil)
	require.NoError(t, err, "non-zero exit should not be an error")
	assert.Equal(t, 42, out.ExitCode)
}

func TestRunner_NilHandle(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestSetEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      []string
		key      string
		value    string
		expected []string
	}{
		{"add new variable", []string{"FOO=bar"}, "BAZ", "qux", []string{"FOO=bar", "BAZ=qux"}},
		{"replace existing", []string{"FOO=bar", "BAZ=old"}, "BAZ", "new", []string{"FOO=bar", "BAZ=new"}},
		{"prefix is not a match", []string{"FOOBAR=1"}, "FOO", "2", []string{"FOOBAR=1", "FOO=2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, setEnv(tt.env, tt.key, tt.value))
		})
	}
}
