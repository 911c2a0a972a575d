// internal/chat/collector.go
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// collectorState tracks reply collection progress.
type collectorState int

const (
	stateWaitingFirstToken collectorState = iota
	stateStreaming
	stateComplete
	stateTimedOut
	stateErrored
)

func (s collectorState) String() string {
	switch s {
	case stateWaitingFirstToken:
		return "waiting_first_token"
	case stateStreaming:
		return "streaming"
	case stateComplete:
		return "complete"
	case stateTimedOut:
		return "timed_out"
	case stateErrored:
		return "errored"
	}
	return "unknown"
}

// collector watches the newest assistant message until generation finishes.
type collector struct {
	drv    browser.Driver
	cfg    config.ChatConfig
	logger *zap.Logger
}

func newCollector(drv browser.Driver, cfg config.ChatConfig, logger *zap.Logger) *collector {
	return &collector{drv: drv, cfg: cfg, logger: logger}
}

// lastAssistantID returns the data-message-id of the newest assistant
// message, or empty when the page has none. Captured before sending so the
// collector can tell the fresh reply from the one already on screen.
func (c *collector) lastAssistantID(ctx context.Context) (string, error) {
	probe, err := c.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return probe.ID, nil
}

// awaitCompletion drives the state machine
//
//	WaitingForFirstToken -> Streaming -> Complete | TimedOut | Errored
//
// Each of the two waiting phases gets the full timeout budget: first-token
// latency and generation length vary independently. Completion means the
// text stayed unchanged for settle_interval with no stop control present.
func (c *collector) awaitCompletion(ctx context.Context, timeout time.Duration, previousID string) (string, string, error) {
	state := stateWaitingFirstToken
	phaseDeadline := time.Now().Add(timeout)
	lastText := ""
	stableSince := time.Now()
	var emptySince time.Time

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		probe, err := c.snapshot(ctx)
		if err != nil {
			return "", "", fmt.Errorf("%w: probing reply: %w", ErrUpstream, err)
		}

		switch state {
		case stateWaitingFirstToken:
			fresh := probe.Count > 0 && (previousID == "" || probe.ID != previousID)
			if fresh && probe.Text != "" {
				state = stateStreaming
				phaseDeadline = time.Now().Add(timeout)
				lastText = probe.Text
				stableSince = time.Now()
				c.logger.Debug("reply streaming started",
					zap.String("message_id", probe.ID))
				continue
			}
			// A fresh container that settles with no text at all is a failed
			// generation, not a slow one.
			if fresh {
				if emptySince.IsZero() {
					emptySince = time.Now()
				} else if time.Since(emptySince) >= c.cfg.SettleInterval {
					generating, err := c.isGenerating(ctx)
					if err != nil {
						return "", "", fmt.Errorf("%w: probing generation indicator: %w", ErrUpstream, err)
					}
					if !generating {
						c.logger.Debug("collection ended", zap.Stringer("state", stateErrored))
						return "", "", fmt.Errorf("%w: assistant reply settled empty", ErrUpstream)
					}
				}
			}
			if banner, err := c.errorBanner(ctx); err != nil {
				return "", "", fmt.Errorf("%w: probing error banner: %w", ErrUpstream, err)
			} else if banner != "" {
				c.logger.Debug("collection ended", zap.Stringer("state", stateErrored))
				return "", "", fmt.Errorf("%w: upstream reported an error: %s", ErrUpstream, banner)
			}
			if time.Now().After(phaseDeadline) {
				c.logger.Debug("collection ended", zap.Stringer("state", stateTimedOut))
				return "", "", fmt.Errorf("%w: timed out waiting for ChatGPT response", ErrTimedOut)
			}

		case stateStreaming:
			if probe.Count == 0 {
				c.logger.Debug("collection ended", zap.Stringer("state", stateErrored))
				return "", "", fmt.Errorf("%w: assistant reply disappeared before completing", ErrUpstream)
			}
			if probe.Text != "" && probe.Text != lastText {
				lastText = probe.Text
				stableSince = time.Now()
			}
			if lastText != "" && time.Since(stableSince) >= c.cfg.SettleInterval {
				generating, err := c.isGenerating(ctx)
				if err != nil {
					return "", "", fmt.Errorf("%w: probing generation indicator: %w", ErrUpstream, err)
				}
				if !generating {
					conversationID, err := c.conversationID(ctx)
					if err != nil {
						return "", "", err
					}
					c.logger.Debug("collection ended",
						zap.Stringer("state", stateComplete),
						zap.Int("reply_chars", len(lastText)))
					return lastText, conversationID, nil
				}
			}
			if time.Now().After(phaseDeadline) {
				c.logger.Debug("collection ended", zap.Stringer("state", stateTimedOut))
				return "", "", fmt.Errorf("%w: timed out waiting for ChatGPT to finish responding", ErrTimedOut)
			}
		}

		select {
		case <-ctx.Done():
			return "", "", fmt.Errorf("%w: %w", ErrTimedOut, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *collector) snapshot(ctx context.Context) (assistantProbe, error) {
	var probe assistantProbe
	if err := c.drv.Evaluate(ctx, assistantProbeJS, &probe); err != nil {
		return assistantProbe{}, err
	}
	return probe, nil
}

func (c *collector) isGenerating(ctx context.Context) (bool, error) {
	var generating bool
	if err := c.drv.Evaluate(ctx, stopVisibleJS, &generating); err != nil {
		return false, err
	}
	return generating, nil
}

func (c *collector) errorBanner(ctx context.Context) (string, error) {
	var banner string
	if err := c.drv.Evaluate(ctx, errorBannerJS, &banner); err != nil {
		return "", err
	}
	return banner, nil
}

func (c *collector) conversationID(ctx context.Context) (string, error) {
	pageURL, err := c.drv.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: reading conversation id: %w", ErrUpstream, err)
	}
	return parseConversationID(pageURL), nil
}
