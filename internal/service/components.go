// File: internal/service/components.go

// Package service assembles the relay's component graph. One browser driver
// is shared by the session manager and the chat client; the HTTP server sits
// in front of both. Construction only wires, it never starts anything: the
// caller owns Open, ListenAndServe, and the shutdown order.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/chat"
	"github.com/xkilldash9x/gptrelay/internal/config"
	"github.com/xkilldash9x/gptrelay/internal/server"
	"github.com/xkilldash9x/gptrelay/internal/session"
)

// Components holds the wired services for one relay instance.
type Components struct {
	Config  *config.Config
	Logger  *zap.Logger
	Driver  browser.Driver
	Session *session.Manager
	Chat    *chat.Client
	Server  *server.Server
}

// Build wires the production graph around a chromedp driver.
func Build(cfg *config.Config, logger *zap.Logger) *Components {
	return BuildWithDriver(cfg, browser.NewChromeDriver(cfg.Browser, logger), logger)
}

// BuildWithDriver wires the graph around a caller-supplied driver. Tests use
// this to assemble the full stack against a fake page.
func BuildWithDriver(cfg *config.Config, drv browser.Driver, logger *zap.Logger) *Components {
	c := &Components{Config: cfg, Logger: logger, Driver: drv}

	// The session readies the page the chat client types into, so both are
	// handed the same driver and the composer selector is the readiness probe.
	c.Session = session.NewManager(cfg, drv, chat.ComposerSelector, logger)
	logger.Debug("session manager wired")

	c.Chat = chat.NewClient(cfg, drv, logger)
	logger.Debug("chat client wired")

	c.Server = server.New(cfg, c.Chat, logger)
	logger.Debug("http server wired")

	return c
}

// Shutdown releases components in reverse dependency order: stop accepting
// HTTP work first, then close the browser session. Partially built graphs
// are fine; nil members are skipped.
func (c *Components) Shutdown(ctx context.Context) {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if c.Server != nil {
		if err := c.Server.Shutdown(ctx); err != nil {
			log.Warn("http server shutdown", zap.Error(err))
		} else {
			log.Debug("http server stopped")
		}
	}

	if c.Session != nil {
		if err := c.Session.Close(ctx); err != nil {
			log.Warn("session close", zap.Error(err))
		} else {
			log.Debug("session closed")
		}
	}

	log.Info("all components shut down")
}
