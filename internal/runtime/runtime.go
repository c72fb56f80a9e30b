package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/zhuyongyong/crosswalk/internal/manifest"
)

// Finding is the result class of a runtime inspection.
type Finding int

const (
	FoundMatched Finding = iota
	FoundNotFound
	FoundSignatureError
	FoundOlderVersion
	FoundNewerVersion
	FoundCompressed
	FoundRuntimeError
)

func (f Finding) String() string {
	switch f {
	case FoundMatched:
		return "matched"
	case FoundNotFound:
		return "not_found"
	case FoundSignatureError:
		return "signature_error"
	case FoundOlderVersion:
		return "older_version"
	case FoundNewerVersion:
		return "newer_version"
	case FoundCompressed:
		return "compressed"
	case FoundRuntimeError:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// Inspection is what a probe found.
type Inspection struct {
	Finding   Finding
	Installed string // installed version, when a manifest was read
	Required  string
	Archive   string // bundled archive to decompress, for FoundCompressed
	Manifest  *manifest.RuntimeManifest
	Err       error
}

// Handle identifies an initialized runtime.
type Handle struct {
	Root          string
	Version       string
	Entrypoint    string // absolute path
	Env           map[string]string
	Manifest      *manifest.RuntimeManifest
	InitializedAt time.Time
}

// ErrAlreadyInitialized is returned by Holder.Init when a handle is held.
var ErrAlreadyInitialized = errors.New("runtime already initialized")

// Holder owns the initialized runtime handle. It replaces process-wide state:
// the readiness machine initializes it once and resets it explicitly.
// Safe for concurrent use.
type Holder struct {
	mu     sync.RWMutex
	handle *Handle
}

// Init stores h. It fails if a handle is already held.
func (h *Holder) Init(handle *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handle != nil {
		return ErrAlreadyInitialized
	}
	h.handle = handle
	return nil
}

// Handle returns the held handle, if any.
func (h *Holder) Handle() (*Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handle, h.handle != nil
}

// Reset drops the held handle.
func (h *Holder) Reset() {
	h.mu.Lock()
	h.handle = nil
	h.mu.Unlock()
}
