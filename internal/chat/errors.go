// internal/chat/errors.go
package chat

import "errors"

// Failure taxonomy of a submission cycle. Every error leaving this package
// wraps exactly one of these sentinels so the transport layer can map
// outcomes without parsing message text.
var (
	// ErrInvalidRequest marks a request rejected before any browser
	// interaction took place.
	ErrInvalidRequest = errors.New("invalid submission request")
	// ErrNavigation covers failures to position the page on the requested
	// conversation surface.
	ErrNavigation = errors.New("conversation navigation failed")
	// ErrComposer means the prompt composer never became available.
	ErrComposer = errors.New("composer not available")
	// ErrAttachment covers upload or acknowledgment failures for a specific
	// attachment.
	ErrAttachment = errors.New("attachment not accepted")
	// ErrSendControl means the send control never became usable.
	ErrSendControl = errors.New("send control not usable")
	// ErrTimedOut means the reply did not complete within the request budget.
	ErrTimedOut = errors.New("timed out waiting for reply")
	// ErrUpstream covers replies the page produced but that are unusable:
	// the assistant container vanished mid-stream or settled empty.
	ErrUpstream = errors.New("no usable reply")
)
