// internal/chat/types.go
package chat

import "time"

// InputMode selects how prompt text is entered into the composer.
type InputMode int

const (
	// InputInstant inserts the whole prompt in one operation.
	InputInstant InputMode = iota
	// InputThrottled types rune by rune with a delay between keystrokes,
	// closer to a human cadence.
	InputThrottled
)

func (m InputMode) String() string {
	if m == InputThrottled {
		return "throttled"
	}
	return "instant"
}

// Attachment is one decoded file to stage into the composer before sending.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request is a single prompt submission. Immutable once handed to Submit.
type Request struct {
	Message string
	// ConversationID targets an existing conversation. Empty means a fresh
	// one.
	ConversationID string
	// TemporaryChat is tri-state: nil leaves the temporary-chat toggle as
	// found, true switches it on, false switches it off. A true value is
	// mutually exclusive with ConversationID.
	TemporaryChat *bool
	Attachments   []Attachment
	Mode          InputMode
	// KeyDelay spaces keystrokes in throttled mode. Zero selects the
	// configured default.
	KeyDelay time.Duration
	// Timeout bounds each response-collection phase. Zero selects the
	// configured default.
	Timeout time.Duration
}

// Result is the completed reply for a Request.
type Result struct {
	Text string
	// ConversationID is read back from the page URL after completion. Empty
	// for temporary chats, which never adopt one.
	ConversationID string
}
