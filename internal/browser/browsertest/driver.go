// internal/browser/browsertest/driver.go

// Package browsertest provides a scriptable in-memory browser.Driver for
// exercising the automation core without a real browser process.
package browsertest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/gptrelay/internal/browser"
)

// Call is one recorded driver operation, in invocation order.
type Call struct {
	Method   string
	Selector string
	// Value carries the operation payload: the URL for Navigate, the text
	// for SendKeys/InsertText, the expression for Evaluate, joined file
	// names for Upload.
	Value string
}

// FakeDriver implements browser.Driver entirely in memory. Behavior is
// scripted through the exported hook fields; unscripted operations succeed
// and return zero values. The zero value is ready to use.
type FakeDriver struct {
	mu        sync.Mutex
	started   bool
	stopped   bool
	stops     int
	calls     []Call
	cookies   []browser.Cookie
	active    int
	maxActive int

	// OpDelay makes every page operation take this long, honoring context
	// cancellation. Useful for overlapping-submission tests.
	OpDelay time.Duration

	StartErr error
	StopErr  error

	NavigateFunc    func(url string) error
	WaitVisibleFunc func(selector string) error
	ClickFunc       func(selector string) error
	ClearFunc       func(selector string) error
	SendKeysFunc    func(selector, text string) error
	InsertTextFunc  func(selector, text string) error
	UploadFunc      func(selector string, files []browser.UploadFile) error
	TextFunc        func(selector string) (string, error)
	LocationFunc    func() (string, error)
	EvaluateFunc    func(expression string, out interface{}) error
}

var _ browser.Driver = (*FakeDriver)(nil)

// New returns an empty fake ready for scripting.
func New() *FakeDriver {
	return &FakeDriver{}
}

// SetResult copies value into out the way a real driver unmarshals an
// evaluation result. Intended for use inside EvaluateFunc hooks.
func SetResult(out, value interface{}) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// op records the call, tracks concurrency, applies OpDelay, then runs fn.
func (d *FakeDriver) op(ctx context.Context, method, selector, value string, fn func() error) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.mu.Unlock()
		return browser.ErrNotStarted
	}
	d.calls = append(d.calls, Call{Method: method, Selector: selector, Value: value})
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	delay := d.OpDelay
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	if fn != nil {
		return fn()
	}
	return nil
}

func (d *FakeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: "Start"})
	if d.StartErr != nil {
		return d.StartErr
	}
	d.started = true
	d.stopped = false
	return nil
}

func (d *FakeDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: "Stop"})
	d.stops++
	d.stopped = true
	return d.StopErr
}

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	return d.op(ctx, "Navigate", "", url, func() error {
		if d.NavigateFunc != nil {
			return d.NavigateFunc(url)
		}
		return nil
	})
}

func (d *FakeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.op(ctx, "WaitVisible", selector, "", func() error {
		if d.WaitVisibleFunc != nil {
			return d.WaitVisibleFunc(selector)
		}
		return nil
	})
}

func (d *FakeDriver) Click(ctx context.Context, selector string) error {
	return d.op(ctx, "Click", selector, "", func() error {
		if d.ClickFunc != nil {
			return d.ClickFunc(selector)
		}
		return nil
	})
}

func (d *FakeDriver) Clear(ctx context.Context, selector string) error {
	return d.op(ctx, "Clear", selector, "", func() error {
		if d.ClearFunc != nil {
			return d.ClearFunc(selector)
		}
		return nil
	})
}

func (d *FakeDriver) SendKeys(ctx context.Context, selector, text string) error {
	return d.op(ctx, "SendKeys", selector, text, func() error {
		if d.SendKeysFunc != nil {
			return d.SendKeysFunc(selector, text)
		}
		return nil
	})
}

func (d *FakeDriver) InsertText(ctx context.Context, selector, text string) error {
	return d.op(ctx, "InsertText", selector, text, func() error {
		if d.InsertTextFunc != nil {
			return d.InsertTextFunc(selector, text)
		}
		return nil
	})
}

func (d *FakeDriver) Upload(ctx context.Context, selector string, files []browser.UploadFile) error {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return d.op(ctx, "Upload", selector, strings.Join(names, ","), func() error {
		if d.UploadFunc != nil {
			return d.UploadFunc(selector, files)
		}
		return nil
	})
}

func (d *FakeDriver) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := d.op(ctx, "Text", selector, "", func() error {
		if d.TextFunc != nil {
			var innerErr error
			text, innerErr = d.TextFunc(selector)
			return innerErr
		}
		return nil
	})
	return text, err
}

func (d *FakeDriver) Location(ctx context.Context) (string, error) {
	var location string
	err := d.op(ctx, "Location", "", "", func() error {
		if d.LocationFunc != nil {
			var innerErr error
			location, innerErr = d.LocationFunc()
			return innerErr
		}
		return nil
	})
	return location, err
}

func (d *FakeDriver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	names := make([]string, len(cookies))
	for i, ck := range cookies {
		names[i] = ck.Name
	}
	return d.op(ctx, "SetCookies", "", strings.Join(names, ","), func() error {
		d.mu.Lock()
		d.cookies = append(d.cookies, cookies...)
		d.mu.Unlock()
		return nil
	})
}

func (d *FakeDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return d.op(ctx, "Evaluate", "", expression, func() error {
		if d.EvaluateFunc != nil {
			return d.EvaluateFunc(expression, out)
		}
		return nil
	})
}

// Calls returns a copy of every recorded operation in order.
func (d *FakeDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// MethodCalls returns the recorded operations matching method, in order.
func (d *FakeDriver) MethodCalls(method string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// MaxConcurrent reports the highest number of page operations that were
// ever in flight at the same time.
func (d *FakeDriver) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Cookies returns every cookie installed through SetCookies.
func (d *FakeDriver) Cookies() []browser.Cookie {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]browser.Cookie, len(d.cookies))
	copy(out, d.cookies)
	return out
}

// Stops reports how many times Stop was invoked.
func (d *FakeDriver) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

// Started reports whether the fake is currently running.
func (d *FakeDriver) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started && !d.stopped
}
