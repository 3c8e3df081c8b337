package engine

import (
	"errors"
	"fmt"
)

// Verdict tells the transport layer how to surface an engine outcome.
type Verdict int

const (
	// Rejected outcomes are expected refusals shown to the user as an informational notice.
	Rejected Verdict = iota + 1
	// Fatal outcomes ended the operation for good; the user gets one failure notice.
	Fatal
	// Discarded outcomes are logged and dropped without telling anyone.
	Discarded
)

func (v Verdict) String() string {
	switch v {
	case Rejected:
		return "rejected"
	case Fatal:
		return "fatal"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// Error is the tagged result of an engine operation that did not produce text.
type Error struct {
	Verdict Verdict
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Verdict, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Verdict, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same verdict and reason, so wrapped instances
// compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Verdict == t.Verdict && e.Reason == t.Reason
}

var (
	ErrAlreadyRunning   = &Error{Verdict: Rejected, Reason: "operation already running"}
	ErrNoHistory        = &Error{Verdict: Rejected, Reason: "nothing to summarize"}
	ErrNothingToDo      = &Error{Verdict: Rejected, Reason: "empty input"}
	ErrPermanentFailure = &Error{Verdict: Fatal, Reason: "permanent failure"}
	ErrNotAdmitted      = &Error{Verdict: Discarded, Reason: "operation no longer admitted"}
	ErrMissingParent    = &Error{Verdict: Discarded, Reason: "reply parent missing"}
	ErrMissingTrigger   = &Error{Verdict: Discarded, Reason: "trigger message missing"}
)

func permanent(err error) error {
	return &Error{Verdict: Fatal, Reason: ErrPermanentFailure.Reason, Err: err}
}

func tagged(sentinel *Error, err error) error {
	return &Error{Verdict: sentinel.Verdict, Reason: sentinel.Reason, Err: err}
}

// VerdictOf returns the verdict carried by err, or zero when err is not an engine error.
func VerdictOf(err error) Verdict {
	var e *Error
	if errors.As(err, &e) {
		return e.Verdict
	}
	return 0
}

func IsRejected(err error) bool  { return VerdictOf(err) == Rejected }
func IsFatal(err error) bool     { return VerdictOf(err) == Fatal }
func IsDiscarded(err error) bool { return VerdictOf(err) == Discarded }
