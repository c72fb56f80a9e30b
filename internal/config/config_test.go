package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the home directory at a temp dir and resets viper.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)
	require.NoError(t, Load())

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".xwalk", "runtime"), s.RuntimeDir)
	assert.Equal(t, 100*time.Millisecond, s.PollInterval)
	assert.Equal(t, 6000, s.PausedSamples())
	assert.Equal(t, 18000, s.RunningSamples())
	assert.Equal(t, "warn", s.LogLevel)
	assert.True(t, s.S3.UseSSL)
	assert.Empty(t, s.DownloadURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("XWALK_DOWNLOAD_URL", "https://example.com/xwalk.tar.gz")
	t.Setenv("XWALK_S3_ENDPOINT", "minio:9000")
	t.Setenv("XWALK_PAUSED_TIMEOUT", "1s")
	require.NoError(t, Load())

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/xwalk.tar.gz", s.DownloadURL)
	assert.Equal(t, "minio:9000", s.S3.Endpoint)
	assert.Equal(t, 10, s.PausedSamples())
}

func TestLoad_DotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("XWALK_REQUIRED_VERSION=22.52.561.4\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("XWALK_REQUIRED_VERSION") })
	require.NoError(t, Load())

	assert.Equal(t, "22.52.561.4", Get(KeyRequiredVersion))
}

func TestSetAndGet(t *testing.T) {
	isolate(t)
	require.NoError(t, Load())

	require.NoError(t, Set(KeyStoreURL, "market://details?id=org.xwalk.core"))
	assert.Equal(t, "market://details?id=org.xwalk.core", Get(KeyStoreURL))
	assert.FileExists(t, FilePath())

	// A fresh load reads the value back from disk.
	viper.Reset()
	require.NoError(t, Load())
	assert.Equal(t, "market://details?id=org.xwalk.core", Get(KeyStoreURL))
}

func TestCurrent_RejectsBadInterval(t *testing.T) {
	isolate(t)
	t.Setenv("XWALK_POLL_INTERVAL", "0s")
	require.NoError(t, Load())

	_, err := Current()
	assert.Error(t, err)
}

func TestURLResolver_ResolvesOnce(t *testing.T) {
	var calls atomic.Int32
	r := NewURLResolver(func() string {
		calls.Add(1)
		return "  https://example.com/a.zip "
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, "https://example.com/a.zip", r.URL())
	}
	assert.Equal(t, int32(1), calls.Load())

	assert.Empty(t, NewURLResolver(nil).URL())
}
