package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport marks network and timeout failures talking to the job runner.
	ErrTransport = errors.New("transport error")
	// ErrApplication marks runner responses that report success=false.
	ErrApplication = errors.New("application error")
	// ErrLockContention marks a start request that lost the starting lock.
	ErrLockContention = errors.New("lock contention")
	// ErrStall marks a pipeline that stopped advancing past the stall threshold.
	ErrStall         = errors.New("stalled")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
)

// ErrorKind is the coarse classification written to structured logs and events.
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindApplication    ErrorKind = "application"
	KindLockContention ErrorKind = "lock_contention"
	KindStall          ErrorKind = "stall"
	KindValidation     ErrorKind = "validation"
	KindConfiguration  ErrorKind = "configuration"
	KindTimeout        ErrorKind = "timeout"
	KindUnknown        ErrorKind = "unknown"
)

// Error carries the phase and operation that produced a failure together with
// the marker used for classification.
type Error struct {
	Marker    error
	Phase     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Phase, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrTransport
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", marker, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", marker, detail)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes phase context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransport
	}
	return &Error{
		Marker:    marker,
		Phase:     strings.TrimSpace(phase),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// Kind classifies err against the sentinel markers.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrLockContention):
		return KindLockContention
	case errors.Is(err, ErrStall):
		return KindStall
	case errors.Is(err, ErrApplication):
		return KindApplication
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

// Retryable reports whether a failure is worth retrying against the runner.
func Retryable(err error) bool {
	switch Kind(err) {
	case KindTransport, KindTimeout:
		return true
	default:
		return false
	}
}

// ErrorDetails is the flattened view of an error used for log attributes.
type ErrorDetails struct {
	Kind      ErrorKind
	Phase     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts structured fields from err. Errors that were not produced
// by Wrap still get a kind and hint.
func Details(err error) ErrorDetails {
	details := ErrorDetails{Kind: Kind(err)}
	var wrapped *Error
	if errors.As(err, &wrapped) {
		details.Phase = wrapped.Phase
		details.Operation = wrapped.Operation
		details.Message = wrapped.Message
		details.Cause = wrapped.Cause
	}
	if details.Message == "" && err != nil {
		details.Message = strings.TrimSpace(err.Error())
	}
	details.Hint = hintFor(details.Kind)
	return details
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindTransport, KindTimeout:
		return "check runner endpoint reachability and network"
	case KindApplication:
		return "inspect the remote job log for the failing batch"
	case KindLockContention:
		return "a start is already in flight; wait for it to finish"
	case KindStall:
		return "remote pipeline stopped advancing; check server cron and workers"
	case KindConfiguration, KindValidation:
		return "review shuttle configuration"
	default:
		return "check logs for details"
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "sync failure"
	}
	return strings.Join(parts, ": ")
}
