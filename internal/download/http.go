package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/logging"
)

// HTTPManager downloads over HTTP(S). Network errors and 5xx responses pause
// the transfer; it resumes with a Range request after the retry delay.
type HTTPManager struct {
	client     *http.Client
	userAgent  string
	retryDelay time.Duration
	maxRetries int
	log        *zap.Logger
	table
}

// HTTPOption configures an HTTPManager.
type HTTPOption func(*HTTPManager)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(m *HTTPManager) {
		m.client = c
	}
}

// WithRetryDelay sets how long a paused transfer waits before resuming.
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(m *HTTPManager) {
		m.retryDelay = d
	}
}

// WithMaxRetries bounds the number of resumes before the transfer fails.
// Zero keeps retrying; the coordinator's paused timeout ends it instead.
func WithMaxRetries(n int) HTTPOption {
	return func(m *HTTPManager) {
		m.maxRetries = n
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(m *HTTPManager) {
		m.log = l
	}
}

// NewHTTPManager creates an HTTPManager.
func NewHTTPManager(opts ...HTTPOption) *HTTPManager {
	m := &HTTPManager{
		client:     http.DefaultClient,
		userAgent:  "xwalk-downloader",
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.OrNop(m.log)
	return m
}

// Enqueue starts downloading req.URL into req.Dest.
func (m *HTTPManager) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.URL == "" || req.Dest == "" {
		return "", errors.New("download request needs a url and a destination")
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &transfer{
		snap:   Snapshot{ID: uuid.NewString(), Status: StatusPending, Total: -1},
		dest:   req.Dest,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.add(t)

	go func() {
		defer close(t.done)
		m.run(ctx, t, req)
	}()
	return t.snap.ID, nil
}

// Query returns the latest snapshot of a transfer.
func (m *HTTPManager) Query(id string) (Snapshot, bool) {
	return m.query(id)
}

// Remove stops and forgets a transfer.
func (m *HTTPManager) Remove(id string) error {
	return m.remove(id)
}

// fetchError is a failure that retrying will not fix.
type fetchError struct {
	reason Reason
	err    error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

func (m *HTTPManager) run(ctx context.Context, t *transfer, req Request) {
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0755); err != nil {
		t.fail(classifyWriteError(err), fmt.Errorf("creating download directory: %w", err))
		return
	}
	f, err := os.Create(req.Dest)
	if err != nil {
		t.fail(classifyWriteError(err), fmt.Errorf("creating download file: %w", err))
		return
	}
	defer f.Close()

	retries := 0
	for {
		err := m.fetch(ctx, t, req.URL, f)
		if err == nil {
			if syncErr := f.Sync(); syncErr != nil {
				t.fail(classifyWriteError(syncErr), fmt.Errorf("flushing download: %w", syncErr))
				return
			}
			t.update(func(s *Snapshot) {
				s.Status, s.Path = StatusSuccessful, req.Dest
			})
			return
		}
		if ctx.Err() != nil {
			return
		}

		var fe *fetchError
		if errors.As(err, &fe) {
			t.fail(fe.reason, fe.err)
			return
		}

		retries++
		if m.maxRetries > 0 && retries > m.maxRetries {
			t.fail(ReasonNetwork, err)
			return
		}
		m.log.Debug("Download paused", zap.String("url", req.URL), zap.Int("retry", retries), zap.Error(err))
		t.update(func(s *Snapshot) { s.Status = StatusPaused })

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retryDelay):
		}
	}
}

// fetch requests the remaining bytes and appends them to f.
func (m *HTTPManager) fetch(ctx context.Context, t *transfer, url string, f *os.File) error {
	offset := t.snapshot().BytesSoFar

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &fetchError{ReasonHTTP, fmt.Errorf("creating download request: %w", err)}
	}
	httpReq.Header.Set("User-Agent", m.userAgent)
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	total := int64(-1)
	switch {
	case resp.StatusCode == http.StatusOK:
		// Full body: the server ignored or was not sent a Range header.
		if offset > 0 {
			if err := f.Truncate(0); err != nil {
				return &fetchError{classifyWriteError(err), fmt.Errorf("truncating download: %w", err)}
			}
			offset = 0
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return &fetchError{classifyWriteError(err), fmt.Errorf("seeking download file: %w", err)}
		}
		total = resp.ContentLength
	case resp.StatusCode == http.StatusPartialContent:
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return &fetchError{classifyWriteError(err), fmt.Errorf("seeking download file: %w", err)}
		}
		total = contentRangeTotal(resp.Header.Get("Content-Range"))
		if total < 0 && resp.ContentLength >= 0 {
			total = offset + resp.ContentLength
		}
	case resp.StatusCode >= 500:
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	default:
		return &fetchError{ReasonHTTP, fmt.Errorf("download returned status %d", resp.StatusCode)}
	}

	t.update(func(s *Snapshot) {
		s.Status, s.BytesSoFar, s.Total = StatusRunning, offset, total
	})

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return &fetchError{classifyWriteError(writeErr), fmt.Errorf("writing download: %w", writeErr)}
			}
			t.update(func(s *Snapshot) { s.BytesSoFar += int64(n) })
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading download stream: %w", readErr)
		}
	}

	if snap := t.snapshot(); snap.Total > 0 && snap.BytesSoFar < snap.Total {
		return fmt.Errorf("download ended early: %d of %d bytes", snap.BytesSoFar, snap.Total)
	}
	return nil
}

// contentRangeTotal parses the complete length from "bytes a-b/total".
func contentRangeTotal(header string) int64 {
	i := strings.LastIndexByte(header, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(header[i+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}
