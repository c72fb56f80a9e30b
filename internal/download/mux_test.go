package download

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMux_RoutesByScheme(t *testing.T) {
	web := &scriptedManager{script: []Snapshot{{Status: StatusRunning}}}
	mux := NewMux()
	mux.Handle(web, "http", "HTTPS")

	id, err := mux.Enqueue(context.Background(), Request{URL: "https://example.com/a.zip", Dest: "/tmp/a.zip"})
	require.NoError(t, err)
	require.Len(t, web.reqs, 1)

	snap, ok := mux.Query(id)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, snap.Status)

	require.NoError(t, mux.Remove(id))
	assert.Equal(t, []string{id}, web.removed)

	_, ok = mux.Query(id)
	assert.False(t, ok)
	assert.NoError(t, mux.Remove(id), "removing twice is a no-op")
}

func TestMux_UnknownScheme(t *testing.T) {
	mux := NewMux()
	mux.Handle(&scriptedManager{}, "https")

	_, err := mux.Enqueue(context.Background(), Request{URL: "ftp://example.com/a.zip", Dest: "/tmp/a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no downloader for scheme "ftp"`)
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://runtimes/xwalk/22.52/xwalk.tar.zst")
	require.NoError(t, err)
	assert.Equal(t, "runtimes", bucket)
	assert.Equal(t, "xwalk/22.52/xwalk.tar.zst", key)

	for _, bad := range []string{"https://runtimes/a", "s3://runtimes", "s3:///key", "://"} {
		_, _, err := ParseS3URL(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewS3Manager(t *testing.T) {
	_, err := NewS3Manager(S3Config{})
	assert.Error(t, err)

	m, err := NewS3Manager(S3Config{Endpoint: "localhost:9000", AccessKey: "minio", SecretKey: "minio123"})
	require.NoError(t, err)

	_, err = m.Enqueue(context.Background(), Request{URL: "https://example.com/a", Dest: "/tmp/a"})
	assert.Error(t, err, "only s3 urls are accepted")
}
