package session

import "errors"

// Sentinel errors reported to completion callbacks. These allow errors.Is
// checks by callers.
var (
	// ErrCanceled is reported when a task was canceled and no canceled
	// callback was supplied.
	ErrCanceled = errors.New("request canceled")
	// ErrSessionClosed is reported for requests submitted after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrNilRequest is reported when Execute is called without a request.
	ErrNilRequest = errors.New("nil request")
)
