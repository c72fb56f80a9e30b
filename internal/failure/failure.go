package failure

import (
	"errors"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	KindConfigurationMissing Kind = "configuration_missing" // no URL and no store
	KindTransferFailed       Kind = "transfer_failed"
	KindTransferTimedOut     Kind = "transfer_timed_out"
	KindIntegrity            Kind = "integrity"    // signature or checksum mismatch
	KindRuntimeInit          Kind = "runtime_init" // runtime could not be initialized
	KindInternalConsistency  Kind = "internal_consistency"
)

// Recoverable reports whether the host may offer a retry for this kind.
func (k Kind) Recoverable() bool {
	switch k {
	case KindConfigurationMissing, KindTransferFailed, KindTransferTimedOut:
		return true
	default:
		return false
	}
}

// Error is the structured error used across the module.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteByte(']')

	if e.Op != "" {
		b.WriteByte(' ')
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error without a cause.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Sentinels for errors.Is checks by kind.
var (
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrTransferFailed       = &Error{Kind: KindTransferFailed}
	ErrTransferTimedOut     = &Error{Kind: KindTransferTimedOut}
	ErrIntegrity            = &Error{Kind: KindIntegrity}
	ErrRuntimeInit          = &Error{Kind: KindRuntimeInit}
	ErrInternalConsistency  = &Error{Kind: KindInternalConsistency}
)

// Fatal panics with an InternalConsistency error. Used where a violated
// invariant means the process cannot continue.
func Fatal(op, detail string, cause error) {
	panic(&Error{Kind: KindInternalConsistency, Op: op, Detail: detail, Cause: cause})
}
