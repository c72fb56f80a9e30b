package store

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuyongyong/crosswalk/internal/failure"
)

func TestDefaultListing(t *testing.T) {
	assert.Equal(t, "market://details?id=org.xwalk.core", DefaultListing("org.xwalk.core"))
}

func TestOpener_Open(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	var got string
	o := &Opener{
		Listing: "market://details?id=org.xwalk.core",
		Command: func(ctx context.Context, url string) *exec.Cmd {
			got = url
			return exec.CommandContext(ctx, "sh", "-c", "exit 0")
		},
	}
	require.NoError(t, o.Open(context.Background()))
	assert.Equal(t, "market://details?id=org.xwalk.core", got)
}

func TestOpener_Failures(t *testing.T) {
	tests := []struct {
		name   string
		opener *Opener
	}{
		{"empty listing", &Opener{Listing: "  "}},
		{"no handler", &Opener{
			Listing: "market://details?id=x",
			Command: func(context.Context, string) *exec.Cmd { return nil },
		}},
		{"handler missing", &Opener{
			Listing: "market://details?id=x",
			Command: func(ctx context.Context, url string) *exec.Cmd {
				return exec.CommandContext(ctx, "xwalk-no-such-url-handler", url)
			},
		}},
	}
	if runtime.GOOS != "windows" {
		tests = append(tests, struct {
			name   string
			opener *Opener
		}{"handler fails", &Opener{
			Listing: "market://details?id=x",
			Command: func(ctx context.Context, url string) *exec.Cmd {
				return exec.CommandContext(ctx, "sh", "-c", "echo no handler for market >&2; exit 4")
			},
		}})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opener.Open(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, failure.ErrConfigurationMissing), err.Error())
		})
	}
}

func TestWatcher_NotifiesWhenRuntimeAppears(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runtime")
	w, err := NewWatcher(dir, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, func() { calls.Add(1) }))
	defer w.Stop()

	// Unrelated sibling changes are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "other.txt"), []byte("x"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())

	// A burst of changes settles into a single notification.
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "runtime.yaml"), []byte("version: 1"), 0644))
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runtime")
	w, err := NewWatcher(dir, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, w.Start(context.Background(), func() { calls.Add(1) }))

	require.NoError(t, os.MkdirAll(dir, 0755))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
