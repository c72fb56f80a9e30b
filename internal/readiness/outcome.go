package readiness

import (
	"github.com/zhuyongyong/crosswalk/internal/deferred"
	"github.com/zhuyongyong/crosswalk/internal/download"
	"github.com/zhuyongyong/crosswalk/internal/extract"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

// Outcome is an event delivered to the Host. The set of implementations is
// closed: NotFound, SignatureError, OlderVersion, NewerVersion, Compressed,
// RuntimeError, Cancelled and Ready report the readiness status; the others
// report progress of an acquisition.
type Outcome interface {
	outcome()
}

// Host receives outcomes on the control goroutine.
type Host interface {
	HandleOutcome(Outcome)
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(Outcome)

// HandleOutcome calls f(o).
func (f HostFunc) HandleOutcome(o Outcome) { f(o) }

type (
	// NotFound: no runtime is installed. AcquireLibrary can fetch it.
	NotFound struct{}

	// SignatureError: the installed runtime failed verification.
	SignatureError struct{ Err error }

	// OlderVersion: the installed runtime is older than required.
	OlderVersion struct{ Installed, Required string }

	// NewerVersion: the installed runtime is newer than this host supports.
	NewerVersion struct{ Installed, Required string }

	// Compressed: a bundled archive is being decompressed.
	Compressed struct{ Archive string }

	// RuntimeError: the runtime could not be inspected or initialized.
	RuntimeError struct{ Err error }

	// Cancelled: acquisition was cancelled. Delivered once.
	Cancelled struct{}

	// Ready: the runtime is initialized and deferred operations have run.
	// DrainErr joins the errors of deferred invocations, if any.
	Ready struct {
		Handle   *runtime.Handle
		Drained  deferred.Stats
		DrainErr error
	}

	DownloadStarted struct{ TaskID, URL string }

	DownloadProgress struct {
		TaskID       string
		SoFar, Total int64
	}

	// DownloadFailed: RetryDownload starts a fresh attempt.
	DownloadFailed struct {
		TaskID  string
		Outcome download.Outcome
		Reason  download.Reason
		Message string
		Err     error
	}

	Installing struct{ Artifact string }

	InstallFailed struct{ Err error }

	// StoreOpened: the store listing was shown; the machine re-checks when
	// the runtime directory changes.
	StoreOpened struct{ Listing string }

	// StoreUnavailable: neither a download URL nor a store is usable.
	StoreUnavailable struct{ Err error }

	DecompressProgress struct {
		Entries int
		Name    string
	}

	DecompressFinished struct {
		Outcome extract.Outcome
		Entries int
		Err     error
	}
)

func (NotFound) outcome() {}
func (SignatureError) outcome() {}
func (OlderVersion) outcome() {}
func (NewerVersion) outcome() {}
func (Compressed) outcome() {}
func (RuntimeError) outcome() {}
func (Cancelled) outcome() {}
func (Ready) outcome() {}
func (DownloadStarted) outcome() {}
func (DownloadProgress) outcome() {}
func (DownloadFailed) outcome() {}
func (Installing) outcome() {}
func (InstallFailed) outcome() {}
func (StoreOpened) outcome() {}
func (StoreUnavailable) outcome() {}
func (DecompressProgress) outcome() {}
func (DecompressFinished) outcome() {}
