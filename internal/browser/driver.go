// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by driver operations invoked before Start or
// after Stop.
var ErrNotStarted = errors.New("browser driver is not running")

// Cookie is a browser cookie installed into the cookie store, scoped to a
// domain and path.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// UploadFile is an in-memory file staged into a file input element.
type UploadFile struct {
	Name string
	Data []byte
}

// Driver is the narrow browser capability surface the rest of the service
// programs against. Implementations must be safe for use from a single
// goroutine at a time; callers bound each operation with the context they
// pass in.
type Driver interface {
	// Start launches the browser process. It must be called exactly once
	// before any other operation.
	Start(ctx context.Context) error
	// Stop tears the browser down. It is idempotent and releases any
	// resources staged by Upload.
	Stop(ctx context.Context) error

	// Navigate loads the given URL in the active tab.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Clear empties the value of an input or contenteditable element.
	Clear(ctx context.Context, selector string) error
	// SendKeys focuses the element and types the text key by key, firing
	// the full keyboard event sequence per character.
	SendKeys(ctx context.Context, selector, text string) error
	// InsertText focuses the element and inserts the text in one IME-style
	// operation without per-character key events.
	InsertText(ctx context.Context, selector, text string) error
	// Upload stages the files on disk and attaches them to the file input
	// matching the selector.
	Upload(ctx context.Context, selector string, files []UploadFile) error

	// Text returns the visible text content of the first matching element.
	Text(ctx context.Context, selector string) (string, error)
	// Location returns the URL of the active tab.
	Location(ctx context.Context) (string, error)

	// SetCookies installs cookies into the browser's cookie store. Callers
	// invoke this before the first navigation so the initial request is
	// already authenticated.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out when out is non-nil.
	Evaluate(ctx context.Context, expression string, out interface{}) error
}
