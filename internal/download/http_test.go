package download

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() []byte {
	return bytes.Repeat([]byte("crosswalk-runtime "), 4096)
}

func TestHTTPManager_EndToEnd(t *testing.T) {
	payload := testPayload()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	m := NewHTTPManager(WithHTTPClient(server.Client()))
	dir := t.TempDir()
	sink := &recordingSink{}

	task, err := fastCoordinator(m, dir).Start(context.Background(), server.URL+"/xwalk.tar.gz", sink)
	require.NoError(t, err)
	res := waitResult(t, task)

	require.Equal(t, OutcomeSuccess, res.Outcome, res.Err)
	assert.Equal(t, filepath.Join(dir, "XWalkRuntimeLib.tar.gz"), res.Artifact)
	got, err := os.ReadFile(res.Artifact)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// The transfer is forgotten once the task ends; the artifact stays.
	_, ok := m.Query(task.transferID)
	assert.False(t, ok)
}

func TestHTTPManager_ResumesWithRange(t *testing.T) {
	payload := testPayload()
	half := len(payload) / 2

	var requests atomic.Int32
	var mu sync.Mutex
	var ranges []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()

		if rng := r.Header.Get("Range"); rng != "" {
			var start int
			fmt.Sscanf(rng, "bytes=%d-", &start)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[start:])
			return
		}

		// First attempt: send half the body and drop the connection.
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		w.WriteHeader(http.StatusOK)
		w.Write(payload[:half])
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	m := NewHTTPManager(WithHTTPClient(server.Client()), WithRetryDelay(5*time.Millisecond))
	task, err := fastCoordinator(m, t.TempDir()).Start(context.Background(), server.URL+"/xwalk.zip", nil)
	require.NoError(t, err)
	res := waitResult(t, task)

	require.Equal(t, OutcomeSuccess, res.Outcome, res.Err)
	got, err := os.ReadFile(res.Artifact)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(ranges), 2)
	assert.Empty(t, ranges[0])
	assert.True(t, strings.HasPrefix(ranges[len(ranges)-1], "bytes="), ranges)
}

func TestHTTPManager_ServerErrorPauses(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	m := NewHTTPManager(WithHTTPClient(server.Client()), WithRetryDelay(20*time.Millisecond))
	id, err := m.Enqueue(context.Background(), Request{URL: server.URL, Dest: filepath.Join(t.TempDir(), "a")})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, _ := m.Query(id)
		return s.Status == StatusPaused
	}, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		s, _ := m.Query(id)
		return s.Status == StatusSuccessful
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, m.Remove(id))
}

func TestHTTPManager_MaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	m := NewHTTPManager(WithHTTPClient(server.Client()), WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	task, err := fastCoordinator(m, t.TempDir()).Start(context.Background(), server.URL+"/a.zip", nil)
	require.NoError(t, err)
	res := waitResult(t, task)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, ReasonNetwork, res.Reason)
}

func TestHTTPManager_NotFoundFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	m := NewHTTPManager(WithHTTPClient(server.Client()))
	task, err := fastCoordinator(m, dir).Start(context.Background(), server.URL+"/missing.zip", nil)
	require.NoError(t, err)
	res := waitResult(t, task)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, ReasonHTTP, res.Reason)
	assert.Contains(t, res.Err.Error(), "status 404")
	assert.NoFileExists(t, filepath.Join(dir, "XWalkRuntimeLib.zip"), "partial file removed")
}

func TestHTTPManager_RemoveStopsTransfer(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	dest := filepath.Join(t.TempDir(), "a.zip")
	m := NewHTTPManager(WithHTTPClient(server.Client()))
	id, err := m.Enqueue(context.Background(), Request{URL: server.URL, Dest: dest})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, _ := m.Query(id)
		return s.Status == StatusRunning && s.BytesSoFar == 7 && s.Total == 1000
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, m.Remove(id))
	assert.NoFileExists(t, dest)
	_, ok := m.Query(id)
	assert.False(t, ok)
}

func TestHTTPManager_EnqueueValidation(t *testing.T) {
	_, err := NewHTTPManager().Enqueue(context.Background(), Request{URL: "https://example.com/a"})
	assert.Error(t, err)
}

func TestContentRangeTotal(t *testing.T) {
	assert.Equal(t, int64(1000), contentRangeTotal("bytes 200-999/1000"))
	assert.Equal(t, int64(-1), contentRangeTotal("bytes 200-999/*"))
	assert.Equal(t, int64(-1), contentRangeTotal(""))
}
