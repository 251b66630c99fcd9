// Package failure classifies the errors a capture run can hit so callers can
// decide between logging, retrying and aborting.
package failure

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind int

const (
	// Unknown is an uncategorized failure.
	Unknown Kind = iota
	// BrowserLaunch means the browser process could not be started.
	BrowserLaunch
	// NavigationFailed means the page navigation errored or timed out.
	NavigationFailed
	// BodyUnavailable means a response body could not be retrieved.
	BodyUnavailable
	// VerificationTransport means the verification GET never got a response.
	VerificationTransport
	// VerificationStatus means the verification GET returned a non-200 status.
	VerificationStatus
	// VerificationSignature means the body did not start like a manifest.
	VerificationSignature
	// SelectorNotFound means a page element could not be found or clicked.
	SelectorNotFound
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case BrowserLaunch:
		return "browser_launch"
	case NavigationFailed:
		return "navigation_failed"
	case BodyUnavailable:
		return "body_unavailable"
	case VerificationTransport:
		return "verification_transport"
	case VerificationStatus:
		return "verification_status"
	case VerificationSignature:
		return "verification_signature"
	case SelectorNotFound:
		return "selector_not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on a second try.
func (k Kind) Retryable() bool {
	switch k {
	case NavigationFailed, VerificationTransport:
		return true
	default:
		return false
	}
}

// Fatal reports whether a run cannot continue after a failure of this kind.
func (k Kind) Fatal() bool {
	return k == BrowserLaunch
}

// Error is a categorized failure.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

// New creates an Error.
func New(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the failure may succeed on a second try.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// IsKind reports whether err's chain holds an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
