// internal/chat/client.go

// Package chat drives prompt submission against the upstream web client:
// position the page, enter the prompt, wait out streamed generation, hand
// back the reply. One browser page serves every request, so all cycles are
// serialized behind a single admission token.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// Client is the request serializer. Submissions are admitted one at a time
// in arrival order; the page is never touched concurrently.
type Client struct {
	cfg    *config.Config
	logger *zap.Logger
	sem    *semaphore.Weighted

	nav  *navigator
	comp *composer
	coll *collector
}

// NewClient wires a serializer around the session's page driver.
func NewClient(cfg *config.Config, drv browser.Driver, logger *zap.Logger) *Client {
	log := logger.Named("chat")
	return &Client{
		cfg:    cfg,
		logger: log,
		sem:    semaphore.NewWeighted(1),
		nav:    newNavigator(drv, cfg.Session.BaseURL, cfg.Chat, log),
		comp:   newComposer(drv, cfg.Chat, log),
		coll:   newCollector(drv, cfg.Chat, log),
	}
}

// Submit runs one full submission cycle and blocks until the reply is
// complete, the budget runs out, or ctx is done. Validation failures return
// ErrInvalidRequest before the admission token is touched.
//
// The cycle itself runs on a detached context: a caller that gives up while
// queued or mid-cycle gets its context error immediately, the in-flight
// browser work is cancelled, and the token is released only once that work
// has actually wound down. The next submission never sees a page that is
// still being mutated.
func (c *Client) Submit(ctx context.Context, req Request) (*Result, error) {
	req, err := c.normalize(req)
	if err != nil {
		return nil, err
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for submission slot: %w", err)
	}

	cycleCtx, cancelCycle := context.WithTimeout(context.Background(), c.cycleBudget(req))

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer c.sem.Release(1)
		defer cancelCycle()
		res, err := c.runCycle(cycleCtx, req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		cancelCycle()
		return nil, fmt.Errorf("submission abandoned: %w", ctx.Err())
	}
}

// normalize validates the request and fills configured defaults.
func (c *Client) normalize(req Request) (Request, error) {
	if strings.TrimSpace(req.Message) == "" {
		return req, fmt.Errorf("%w: message cannot be empty", ErrInvalidRequest)
	}
	if req.ConversationID != "" && req.TemporaryChat != nil && *req.TemporaryChat {
		return req, fmt.Errorf("%w: temporary_chat cannot be enabled when conversation_id is set", ErrInvalidRequest)
	}
	if req.Timeout < 0 {
		return req, fmt.Errorf("%w: timeout must not be negative", ErrInvalidRequest)
	}
	if req.KeyDelay < 0 {
		return req, fmt.Errorf("%w: input delay must not be negative", ErrInvalidRequest)
	}
	if req.Timeout == 0 {
		req.Timeout = c.cfg.Chat.DefaultTimeout
	}
	if req.Mode == InputThrottled && req.KeyDelay == 0 {
		req.KeyDelay = c.cfg.Chat.DefaultKeyDelay
	}
	return req, nil
}

// cycleBudget is the hard wall-clock bound for one cycle: both collection
// phases at full timeout, every bounded protocol step, typing time in
// throttled mode, plus the configured grace.
func (c *Client) cycleBudget(req Request) time.Duration {
	chat := c.cfg.Chat
	budget := 2*req.Timeout + chat.NavigationTimeout + chat.ComposerTimeout + chat.SendTimeout + chat.QueueGrace
	if n := len(req.Attachments); n > 0 {
		budget += time.Duration(n) * chat.AttachmentTimeout
	}
	if req.Mode == InputThrottled {
		budget += time.Duration(utf8.RuneCountInString(req.Message)) * req.KeyDelay
	}
	return budget
}

func (c *Client) runCycle(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := c.logger.With(
		zap.String("conversation_id", req.ConversationID),
		zap.Stringer("input_mode", req.Mode),
		zap.Int("attachments", len(req.Attachments)),
		zap.Duration("timeout", req.Timeout),
	)
	log.Info("submission cycle started", zap.Int("message_chars", len(req.Message)))

	res, err := c.cycle(ctx, req)
	if err != nil {
		log.Warn("submission cycle failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	log.Info("submission cycle completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("result_conversation_id", res.ConversationID),
		zap.Int("reply_chars", len(res.Text)))
	return res, nil
}

// cycle is Navigator -> Composer -> Collector against the shared page.
func (c *Client) cycle(ctx context.Context, req Request) (*Result, error) {
	if err := c.nav.prepare(ctx, req); err != nil {
		return nil, err
	}

	previousID, err := c.coll.lastAssistantID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading conversation state: %w", ErrUpstream, err)
	}

	if err := c.comp.compose(ctx, req); err != nil {
		return nil, err
	}

	text, conversationID, err := c.coll.awaitCompletion(ctx, req.Timeout, previousID)
	if err != nil {
		return nil, err
	}
	if c.cfg.Chat.FilterResponse {
		text = FilterResponse(text)
	}
	return &Result{Text: text, ConversationID: conversationID}, nil
}
