package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"
)

// Status is the state of a transfer as reported by a Manager.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusPaused
	StatusSuccessful
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusSuccessful:
		return "successful"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason explains a failed transfer.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonDeviceNotFound    Reason = "device_not_found"
	ReasonInsufficientSpace Reason = "insufficient_space"
	ReasonHTTP              Reason = "http_error"
	ReasonNetwork           Reason = "network_error"
	ReasonChecksumMismatch  Reason = "checksum_mismatch"
	ReasonUnknown           Reason = "unknown"
)

// Message returns the text shown to the user for r.
func (r Reason) Message() string {
	switch r {
	case ReasonDeviceNotFound:
		return "download failed: storage device not found"
	case ReasonInsufficientSpace:
		return "download failed: insufficient space"
	case ReasonChecksumMismatch:
		return "download failed: package checksum mismatch"
	default:
		return "download failed"
	}
}

// Request describes a transfer to enqueue.
type Request struct {
	URL  string
	Dest string // local file the artifact is written to
}

// Snapshot is the state of a transfer at one point in time.
type Snapshot struct {
	ID         string
	Status     Status
	BytesSoFar int64
	Total      int64 // -1 or 0 when unknown
	Reason     Reason
	Err        error
	Path       string // set once Successful
}

// Manager runs transfers in the background.
//
// Enqueue starts a transfer and returns its ID. Query returns the latest
// snapshot; ok is false when the ID is unknown. Remove stops the transfer,
// forgets it, and deletes any partial file. The artifact of a successful
// transfer is kept.
type Manager interface {
	Enqueue(ctx context.Context, req Request) (string, error)
	Query(id string) (Snapshot, bool)
	Remove(id string) error
}

// transfer is the bookkeeping shared by the Manager implementations.
type transfer struct {
	mu     sync.Mutex
	snap   Snapshot
	dest   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *transfer) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *transfer) update(fn func(s *Snapshot)) {
	t.mu.Lock()
	fn(&t.snap)
	t.mu.Unlock()
}

func (t *transfer) fail(reason Reason, err error) {
	t.update(func(s *Snapshot) {
		s.Status, s.Reason, s.Err = StatusFailed, reason, err
	})
}

// table tracks transfers by ID.
type table struct {
	mu        sync.Mutex
	transfers map[string]*transfer
}

func (tb *table) add(t *transfer) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.transfers == nil {
		tb.transfers = make(map[string]*transfer)
	}
	tb.transfers[t.snap.ID] = t
}

func (tb *table) get(id string) (*transfer, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	t, ok := tb.transfers[id]
	return t, ok
}

func (tb *table) query(id string) (Snapshot, bool) {
	t, ok := tb.get(id)
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// remove cancels the transfer, waits for its goroutine to exit, and deletes
// the destination file unless the transfer succeeded.
func (tb *table) remove(id string) error {
	tb.mu.Lock()
	t, ok := tb.transfers[id]
	delete(tb.transfers, id)
	tb.mu.Unlock()
	if !ok {
		return nil
	}

	t.cancel()
	<-t.done
	if t.snapshot().Status == StatusSuccessful {
		return nil
	}
	if err := os.Remove(t.dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing partial download: %w", err)
	}
	return nil
}

// classifyWriteError maps a local file error to a failure reason.
func classifyWriteError(err error) Reason {
	if errors.Is(err, syscall.ENOSPC) {
		return ReasonInsufficientSpace
	}
	return ReasonDeviceNotFound
}

// ArtifactName returns the local file name for a package downloaded from
// rawURL: a fixed base name plus the archive extension of the URL path.
func ArtifactName(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := strings.ToLower(path.Base(p))
	for _, ext := range []string{".tar.gz", ".tar.zst", ".tgz", ".zip"} {
		if strings.HasSuffix(base, ext) {
			return artifactBase + ext
		}
	}
	return artifactBase + path.Ext(base)
}

const artifactBase = "XWalkRuntimeLib"
