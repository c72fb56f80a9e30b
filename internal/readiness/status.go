package readiness

import (
	"fmt"

	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

// Status is the readiness state of the runtime.
type Status int

const (
	StatusNotChecked Status = iota
	StatusNotFound
	StatusSignatureError
	StatusOlderVersion
	StatusNewerVersion
	StatusCompressed
	StatusMatched
	StatusReady
	StatusCancelled
	StatusRuntimeError
)

func (s Status) String() string {
	switch s {
	case StatusNotChecked:
		return "not_checked"
	case StatusNotFound:
		return "not_found"
	case StatusSignatureError:
		return "signature_error"
	case StatusOlderVersion:
		return "older_version"
	case StatusNewerVersion:
		return "newer_version"
	case StatusCompressed:
		return "compressed"
	case StatusMatched:
		return "matched"
	case StatusReady:
		return "ready"
	case StatusCancelled:
		return "cancelled"
	case StatusRuntimeError:
		return "runtime_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// acquirable reports whether a download or store install can fix s.
func (s Status) acquirable() bool {
	return s == StatusNotFound || s == StatusOlderVersion
}

// settled reports whether s needs no further action from the machine.
func (s Status) settled() bool {
	switch s {
	case StatusReady, StatusCancelled, StatusSignatureError, StatusNewerVersion, StatusRuntimeError:
		return true
	default:
		return false
	}
}

func statusFor(f runtime.Finding) Status {
	switch f {
	case runtime.FoundMatched:
		return StatusMatched
	case runtime.FoundNotFound:
		return StatusNotFound
	case runtime.FoundSignatureError:
		return StatusSignatureError
	case runtime.FoundOlderVersion:
		return StatusOlderVersion
	case runtime.FoundNewerVersion:
		return StatusNewerVersion
	case runtime.FoundCompressed:
		return StatusCompressed
	default:
		return StatusRuntimeError
	}
}
