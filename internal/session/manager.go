// internal/session/manager.go

// Package session owns the one authenticated browser session of the
// process. It is created once at startup, shared by every submission, and
// destroyed once at shutdown; it is never re-created mid-process.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

var (
	// ErrNoCredential means session.token is not configured. The service
	// refuses to start without it.
	ErrNoCredential = errors.New("no session credential configured")
	// ErrLaunch wraps any failure to produce an authenticated, ready page.
	ErrLaunch = errors.New("browser session launch failed")
	// ErrAlreadyOpen guards the at-most-one-session invariant.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrClosed means the session was shut down; it cannot be reopened.
	ErrClosed = errors.New("session closed")
)

// stopGrace bounds the best-effort teardown after a failed open.
const stopGrace = 10 * time.Second

// Manager holds the singleton browser session.
type Manager struct {
	cfg *config.Config
	drv browser.Driver
	// readySelector is the element whose visibility marks the session as
	// usable, typically the prompt composer. Empty skips the readiness wait.
	readySelector string
	logger        *zap.Logger

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewManager wires a manager around a driver. Nothing is launched until
// Open.
func NewManager(cfg *config.Config, drv browser.Driver, readySelector string, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:           cfg,
		drv:           drv,
		readySelector: readySelector,
		logger:        logger.Named("session"),
	}
}

// Open launches the browser, injects the session credential into every
// configured cookie name, navigates to the base URL and waits until the
// page is usable. The cookies go in before the first navigation so the
// initial request already carries them.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.opened {
		return ErrAlreadyOpen
	}

	token := strings.TrimSpace(m.cfg.Session.Token)
	if token == "" {
		return fmt.Errorf("%w: set session.token", ErrNoCredential)
	}
	cookies, err := buildCookies(m.cfg.Session, token)
	if err != nil {
		return err
	}

	if err := m.drv.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if err := m.drv.SetCookies(ctx, cookies); err != nil {
		return m.failOpen("injecting session cookies", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.Chat.NavigationTimeout)
	defer cancel()
	if err := m.drv.Navigate(navCtx, m.cfg.Session.BaseURL); err != nil {
		return m.failOpen("loading base URL", err)
	}

	if m.readySelector != "" {
		readyCtx, cancel := context.WithTimeout(ctx, m.cfg.Chat.ComposerTimeout)
		defer cancel()
		if err := m.drv.WaitVisible(readyCtx, m.readySelector); err != nil {
			return m.failOpen("waiting for the page to become usable", err)
		}
	}

	m.opened = true
	m.logger.Info("session open",
		zap.String("base_url", m.cfg.Session.BaseURL),
		zap.Int("cookies", len(cookies)),
		zap.Bool("headless", m.cfg.Browser.Headless),
		zap.Bool("stealth", m.cfg.Browser.Stealth))
	return nil
}

// failOpen tears the half-started browser down and reports the open
// failure.
func (m *Manager) failOpen(step string, err error) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if stopErr := m.drv.Stop(stopCtx); stopErr != nil {
		m.logger.Warn("teardown after failed open", zap.Error(stopErr))
	}
	return fmt.Errorf("%w: %s: %w", ErrLaunch, step, err)
}

// Close releases the browser. Safe to call multiple times and before Open.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if !m.opened {
		return nil
	}
	m.opened = false
	if err := m.drv.Stop(ctx); err != nil {
		return fmt.Errorf("stopping browser: %w", err)
	}
	m.logger.Info("session closed")
	return nil
}

// IsOpen reports whether the session is currently usable.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened && !m.closed
}

// Driver exposes the page handle for the submission serializer.
func (m *Manager) Driver() browser.Driver {
	return m.drv
}

// buildCookies expands the credential into one cookie per configured name,
// scoped to the base URL's host. Secure is only set on https bases so local
// test servers keep working.
func buildCookies(sc config.SessionConfig, token string) ([]browser.Cookie, error) {
	u, err := url.Parse(sc.BaseURL)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid session.base_url %q", sc.BaseURL)
	}
	cookies := make([]browser.Cookie, 0, len(sc.CookieNames))
	for _, name := range sc.CookieNames {
		cookies = append(cookies, browser.Cookie{
			Name:     name,
			Value:    token,
			Domain:   u.Hostname(),
			Path:     "/",
			Secure:   u.Scheme == "https",
			HTTPOnly: true,
		})
	}
	return cookies, nil
}
