// internal/chat/navigator.go
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/browser"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// tempToggleTimeout bounds each interaction with the temporary-chat toggle.
const tempToggleTimeout = 5 * time.Second

// conversationHistoryTimeout bounds the best-effort wait for existing
// conversation turns to render.
const conversationHistoryTimeout = 10 * time.Second

// navigator positions the page on the surface a request targets: an existing
// conversation, a fresh chat, or a fresh temporary chat.
type navigator struct {
	drv     browser.Driver
	baseURL string
	cfg     config.ChatConfig
	logger  *zap.Logger
}

func newNavigator(drv browser.Driver, baseURL string, cfg config.ChatConfig, logger *zap.Logger) *navigator {
	return &navigator{
		drv:     drv,
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		logger:  logger,
	}
}

// prepare brings the page to the request's target surface and leaves the
// composer ready for input.
func (n *navigator) prepare(ctx context.Context, req Request) error {
	if req.ConversationID != "" {
		if err := n.gotoConversation(ctx, req.ConversationID); err != nil {
			return err
		}
	} else {
		if err := n.gotoHome(ctx); err != nil {
			return err
		}
		if req.TemporaryChat != nil {
			if err := n.setTemporaryChat(ctx, *req.TemporaryChat); err != nil {
				return err
			}
		}
	}

	// Readiness means the composer accepts input, not that the page fired a
	// load event: the application keeps rendering well after load.
	waitCtx, cancel := context.WithTimeout(ctx, n.cfg.ComposerTimeout)
	defer cancel()
	if err := n.drv.WaitVisible(waitCtx, ComposerSelector); err != nil {
		return fmt.Errorf("%w: ChatGPT composer not available; check session token: %w", ErrComposer, err)
	}
	return nil
}

// gotoConversation loads /c/<id> and waits until the conversation surface is
// usable. Navigation is skipped when the page is already there.
func (n *navigator) gotoConversation(ctx context.Context, conversationID string) error {
	target := n.baseURL + "/c/" + strings.TrimSpace(conversationID)

	current, err := n.drv.Location(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading page location: %w", ErrNavigation, err)
	}
	if !strings.HasPrefix(current, target) {
		navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
		defer cancel()
		if err := n.drv.Navigate(navCtx, target); err != nil {
			return fmt.Errorf("%w: loading conversation %s: %w", ErrNavigation, conversationID, err)
		}
	}

	// The application redirects away from unknown conversation ids; treat
	// anything that leaves the target URL as a failed navigation.
	if err := n.waitForURLPrefix(ctx, target, n.cfg.NavigationTimeout); err != nil {
		return fmt.Errorf("%w: timed out waiting for conversation to load: %w", ErrNavigation, err)
	}

	composerCtx, cancel := context.WithTimeout(ctx, n.cfg.ComposerTimeout)
	defer cancel()
	if err := n.drv.WaitVisible(composerCtx, ComposerSelector); err != nil {
		return fmt.Errorf("%w: ChatGPT composer not available: %w", ErrComposer, err)
	}

	// Existing turns rendering is best effort: an empty or slow history must
	// not fail the submission.
	historyCtx, cancel := context.WithTimeout(ctx, conversationHistoryTimeout)
	defer cancel()
	if err := n.drv.WaitVisible(historyCtx, conversationReadySelector); err != nil {
		n.logger.Debug("conversation history did not render in time",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
	return nil
}

// gotoHome loads the base URL unless the page is already on it and outside
// any conversation.
func (n *navigator) gotoHome(ctx context.Context) error {
	current, err := n.drv.Location(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading page location: %w", ErrNavigation, err)
	}
	if strings.HasPrefix(current, n.baseURL) && !strings.Contains(current, "/c/") {
		return nil
	}
	navCtx, cancel := context.WithTimeout(ctx, n.cfg.NavigationTimeout)
	defer cancel()
	if err := n.drv.Navigate(navCtx, n.baseURL); err != nil {
		return fmt.Errorf("%w: loading home: %w", ErrNavigation, err)
	}
	return nil
}

// setTemporaryChat drives the temporary-chat toggle to the requested state.
// Already being in that state is success.
func (n *navigator) setTemporaryChat(ctx context.Context, enabled bool) error {
	waitCtx, cancel := context.WithTimeout(ctx, tempToggleTimeout)
	defer cancel()
	if err := n.drv.WaitVisible(waitCtx, tempChatAnySelector); err != nil {
		return fmt.Errorf("%w: temporary chat toggle not found: %w", ErrNavigation, err)
	}

	// The toggle exposes its state through which aria-label is present.
	want, inverse := tempChatOnSelector, tempChatOffSelector
	if !enabled {
		want, inverse = tempChatOffSelector, tempChatOnSelector
	}
	if visible, err := n.isVisible(ctx, inverse); err != nil {
		return fmt.Errorf("%w: probing temporary chat toggle: %w", ErrNavigation, err)
	} else if visible {
		return nil
	}

	clickCtx, cancel := context.WithTimeout(ctx, tempToggleTimeout)
	defer cancel()
	if err := n.drv.Click(clickCtx, want); err != nil {
		return fmt.Errorf("%w: temporary chat toggle not clickable: %w", ErrNavigation, err)
	}
	settleCtx, cancel := context.WithTimeout(ctx, tempToggleTimeout)
	defer cancel()
	if err := n.drv.WaitVisible(settleCtx, inverse); err != nil {
		return fmt.Errorf("%w: temporary chat state did not change: %w", ErrNavigation, err)
	}
	return nil
}

func (n *navigator) isVisible(ctx context.Context, selector string) (bool, error) {
	var present bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := n.drv.Evaluate(ctx, expr, &present); err != nil {
		return false, err
	}
	return present, nil
}

// waitForURLPrefix polls the page URL until it starts with prefix.
func (n *navigator) waitForURLPrefix(ctx context.Context, prefix string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()
	for {
		current, err := n.drv.Location(ctx)
		if err != nil {
			return err
		}
		if strings.HasPrefix(current, prefix) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page stayed on %s", current)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// parseConversationID extracts the /c/<id> path segment from a page URL.
// Empty when the page is not inside a conversation.
func parseConversationID(pageURL string) string {
	_, tail, found := strings.Cut(pageURL, "/c/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(tail, "?")
	return id
}
