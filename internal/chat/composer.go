// internal/chat/composer.go
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// composer stages attachments, enters the prompt text and activates the send
// control.
type composer struct {
	drv    browser.Driver
	cfg    config.ChatConfig
	logger *zap.Logger
}

func newComposer(drv browser.Driver, cfg config.ChatConfig, logger *zap.Logger) *composer {
	return &composer{drv: drv, cfg: cfg, logger: logger}
}

// compose runs the full input sequence: clear the composer, stage every
// attachment in order, enter the text, send.
func (c *composer) compose(ctx context.Context, req Request) error {
	if err := c.clear(ctx); err != nil {
		return err
	}
	for i, att := range req.Attachments {
		if err := c.attach(ctx, att, i+1); err != nil {
			return err
		}
	}
	if err := c.typeMessage(ctx, req); err != nil {
		return err
	}
	return c.clickSend(ctx)
}

// clear focuses the composer and empties any draft left from a previous
// interaction.
func (c *composer) clear(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.ComposerTimeout)
	defer cancel()
	if err := c.drv.Click(opCtx, ComposerSelector); err != nil {
		return fmt.Errorf("%w: focusing composer: %w", ErrComposer, err)
	}
	if err := c.drv.Clear(opCtx, ComposerSelector); err != nil {
		return fmt.Errorf("%w: clearing composer: %w", ErrComposer, err)
	}
	return nil
}

// attach stages one file into the composer's file input and waits until the
// application reflects it as a preview. total is the running count the
// preview probe must reach, which keeps uploads strictly ordered.
func (c *composer) attach(ctx context.Context, att Attachment, total int) error {
	attCtx, cancel := context.WithTimeout(ctx, c.cfg.AttachmentTimeout)
	defer cancel()

	file := browser.UploadFile{Name: att.Name, Data: att.Data}
	if err := c.drv.Upload(attCtx, fileInputSelector, []browser.UploadFile{file}); err != nil {
		return fmt.Errorf("%w: staging %s: %w", ErrAttachment, att.Name, err)
	}

	acknowledged := func(pollCtx context.Context) (bool, error) {
		var count int
		if err := c.drv.Evaluate(pollCtx, attachmentCountJS, &count); err != nil {
			return false, err
		}
		return count >= total, nil
	}
	if err := poll(attCtx, c.cfg.PollInterval, acknowledged); err != nil {
		return fmt.Errorf("%w: %s was not acknowledged: %w", ErrAttachment, att.Name, err)
	}
	c.logger.Debug("attachment acknowledged",
		zap.String("name", att.Name),
		zap.String("content_type", att.ContentType),
		zap.Int("bytes", len(att.Data)))
	return nil
}

// typeMessage enters the prompt. Instant mode inserts the whole text at
// once; throttled mode types rune by rune with the requested spacing.
// Newlines always go through insert so they produce line breaks instead of
// submitting the form early.
func (c *composer) typeMessage(ctx context.Context, req Request) error {
	if req.Mode != InputThrottled {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.ComposerTimeout)
		defer cancel()
		if err := c.drv.InsertText(opCtx, ComposerSelector, req.Message); err != nil {
			return fmt.Errorf("%w: inserting prompt text: %w", ErrComposer, err)
		}
		return nil
	}

	for _, r := range req.Message {
		var err error
		if r == '\n' {
			err = c.drv.InsertText(ctx, ComposerSelector, "\n")
		} else {
			err = c.drv.SendKeys(ctx, ComposerSelector, string(r))
		}
		if err != nil {
			return fmt.Errorf("%w: typing prompt text: %w", ErrComposer, err)
		}
		if req.KeyDelay > 0 {
			if err := sleepCtx(ctx, req.KeyDelay); err != nil {
				return fmt.Errorf("%w: typing prompt text: %w", ErrComposer, err)
			}
		}
	}
	return nil
}

// clickSend waits for the send control to accept a click, then clicks it.
// The control stays disabled until the composer has content and every
// attachment is acknowledged.
func (c *composer) clickSend(ctx context.Context) error {
	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()

	if err := c.drv.WaitVisible(sendCtx, sendButtonSelector); err != nil {
		return fmt.Errorf("%w: send button not found: %w", ErrSendControl, err)
	}
	enabled := func(pollCtx context.Context) (bool, error) {
		var ready bool
		if err := c.drv.Evaluate(pollCtx, sendEnabledJS, &ready); err != nil {
			return false, err
		}
		return ready, nil
	}
	if err := poll(sendCtx, c.cfg.PollInterval, enabled); err != nil {
		return fmt.Errorf("%w: send button never became enabled: %w", ErrSendControl, err)
	}
	if err := c.drv.Click(sendCtx, sendButtonSelector); err != nil {
		return fmt.Errorf("%w: clicking send: %w", ErrSendControl, err)
	}
	return nil
}

// poll invokes probe at the given cadence until it reports done, returns an
// error, or ctx expires. The first probe runs immediately.
func poll(ctx context.Context, interval time.Duration, probe func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// sleepCtx sleeps for d unless ctx expires first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
