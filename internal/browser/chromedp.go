// internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser/stealth"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

const (
	launchTimeout = 60 * time.Second
	stopTimeout   = 15 * time.Second
)

// ChromeDriver drives a locally launched Chrome or Chromium process over the
// DevTools protocol. It implements Driver.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	stopped       bool
	tempDirs      []string
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver creates the driver without launching anything. Start boots
// the browser process.
func NewChromeDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromeDriver {
	return &ChromeDriver{
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
}

// parseLaunchArg splits a raw command line argument into a flag name and
// value. Arguments without "=" become boolean switches; leading dashes are
// stripped either way.
func parseLaunchArg(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

// AllocatorOptions translates the browser configuration into chromedp
// allocator options. The user data dir is created on the fly so a fresh
// profile path works on first launch.
func AllocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems where the kernel sandbox is unavailable.
		chromedp.NoSandbox,
		// Recommended for stability in containers and headless environments.
		chromedp.Flag("disable-dev-shm-usage", true),
		// A fixed desktop viewport keeps the page layout, and with it the
		// selectors, stable across environments.
		chromedp.WindowSize(1280, 800),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if cfg.SuppressAutomation {
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("exclude-switches", "enable-automation"),
			chromedp.Flag("disable-infobars", true),
		)
	}

	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create user data dir %q: %w", cfg.UserDataDir, err)
		}
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}

	switch {
	case cfg.ExecPath != "":
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	case cfg.Channel != "":
		path, err := locateBrowser(cfg.Channel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chromedp.ExecPath(path))
	}

	for _, arg := range cfg.ExtraArgs {
		name, value := parseLaunchArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}

	return opts, nil
}

// Start launches the browser process and applies the stealth layer. The
// launch respects ctx; without a deadline a 60 second cap applies.
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.browserCtx != nil || d.stopped {
		d.mu.Unlock()
		return fmt.Errorf("browser driver already started")
	}
	d.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, launchTimeout)
		defer cancel()
	}

	opts, err := AllocatorOptions(d.cfg)
	if err != nil {
		return err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Warnf),
	)

	tasks := chromedp.Tasks{}
	if d.cfg.Stealth {
		tasks = append(tasks, stealth.Apply(stealth.DefaultPersona, d.logger))
	}

	// chromedp.Run must use the browser context itself; wrapping it in the
	// caller's context would tie the browser lifetime to this call. The
	// select below keeps the launch interruptible anyway.
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(browserCtx, tasks)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			browserCancel()
			allocCancel()
			return fmt.Errorf("failed to launch browser: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	d.mu.Lock()
	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.browserCancel = browserCancel
	d.mu.Unlock()

	d.logger.Info("Browser launched.",
		zap.Bool("headless", d.cfg.Headless),
		zap.Bool("stealth", d.cfg.Stealth),
	)
	return nil
}

// Stop closes the browser gracefully and removes any staged upload files.
// Safe to call more than once.
func (d *ChromeDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	browserCtx := d.browserCtx
	browserCancel := d.browserCancel
	allocCancel := d.allocCancel
	tempDirs := d.tempDirs
	d.tempDirs = nil
	d.mu.Unlock()

	if browserCtx != nil {
		// Ask for an orderly browser shutdown first; fall back to killing
		// the process when it does not comply in time.
		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(browserCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				d.logger.Warn("Browser did not close cleanly.", zap.Error(err))
			}
		case <-ctx.Done():
			d.logger.Warn("Context cancelled while waiting for browser shutdown.", zap.Error(ctx.Err()))
		case <-time.After(stopTimeout):
			d.logger.Warn("Timeout waiting for browser shutdown, killing the process.")
		}
	}

	if browserCancel != nil {
		browserCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}

	for _, dir := range tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			d.logger.Debug("Could not remove staged upload dir.", zap.String("dir", dir), zap.Error(err))
		}
	}

	d.logger.Info("Browser stopped.")
	return nil
}

// run executes chromedp actions against the live browser, honoring both the
// browser lifetime and the caller's deadline.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	browserCtx := d.browserCtx
	stopped := d.stopped
	d.mu.Unlock()

	if browserCtx == nil || stopped {
		return ErrNotStarted
	}

	runCtx, cancel := CombineContext(browserCtx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Clear empties both classic form fields and contenteditable surfaces, then
// fires an input event so framework-managed state notices the change.
func (d *ChromeDriver) Clear(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		if (el.isContentEditable) { el.innerHTML = ""; } else { el.value = ""; }
		el.dispatchEvent(new Event("input", { bubbles: true }));
		return true;
	})(%q)`, selector)

	var cleared bool
	if err := d.run(ctx, chromedp.Evaluate(script, &cleared)); err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("no element matched selector %q", selector)
	}
	return nil
}

func (d *ChromeDriver) SendKeys(ctx context.Context, selector, text string) error {
	return d.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (d *ChromeDriver) InsertText(ctx context.Context, selector, text string) error {
	return d.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(c context.Context) error {
			return input.InsertText(text).Do(c)
		}),
	)
}

// Upload writes the files into a private temp dir and attaches them to the
// matching file input. The staged files live until Stop because the page
// reads them asynchronously after the call returns.
func (d *ChromeDriver) Upload(ctx context.Context, selector string, files []UploadFile) error {
	if len(files) == 0 {
		return nil
	}

	dir, err := os.MkdirTemp("", "gptrelay-upload-")
	if err != nil {
		return fmt.Errorf("could not stage upload files: %w", err)
	}
	d.mu.Lock()
	d.tempDirs = append(d.tempDirs, dir)
	d.mu.Unlock()

	paths := make([]string, 0, len(files))
	for _, f := range files {
		// Base strips any directory components a caller may have smuggled in.
		name := filepath.Base(strings.TrimSpace(f.Name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			return fmt.Errorf("attachment has no usable file name")
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0o600); err != nil {
			return fmt.Errorf("could not write staged file %q: %w", name, err)
		}
		paths = append(paths, path)
	}

	return d.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery))
}

func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := d.run(ctx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	return d.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		for _, ck := range cookies {
			err := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly).
				WithSameSite(network.CookieSameSiteLax).
				Do(c)
			if err != nil {
				return fmt.Errorf("could not set cookie %q: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return d.run(ctx, chromedp.Evaluate(expression, out))
}
