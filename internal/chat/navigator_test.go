// internal/chat/navigator_test.go
package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gptrelay/internal/browser/browsertest"
)

func newTestNavigator(t *testing.T, d *browsertest.FakeDriver) *navigator {
	t.Helper()
	return newNavigator(d, testBaseURL+"/", newTestConfig().Chat, zaptest.NewLogger(t))
}

func TestParseConversationID(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{name: "PlainConversation", url: "https://chatgpt.com/c/abc-123", want: "abc-123"},
		{name: "QueryStringStripped", url: "https://chatgpt.com/c/abc?model=auto&x=1", want: "abc"},
		{name: "HomePage", url: "https://chatgpt.com/", want: ""},
		{name: "EmptyURL", url: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseConversationID(tc.url))
		})
	}
}

func TestGotoHome(t *testing.T) {
	t.Run("SkipsNavigationWhenAlreadyHome", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) { return testBaseURL, nil }

		require.NoError(t, newTestNavigator(t, d).gotoHome(context.Background()))
		assert.Empty(t, d.MethodCalls("Navigate"))
	})

	t.Run("LeavesConversationPages", func(t *testing.T) {
		d := startedFake(t)
		current := testBaseURL + "/c/old"
		d.LocationFunc = func() (string, error) { return current, nil }
		d.NavigateFunc = func(url string) error {
			current = url
			return nil
		}

		require.NoError(t, newTestNavigator(t, d).gotoHome(context.Background()))

		navs := d.MethodCalls("Navigate")
		require.Len(t, navs, 1)
		assert.Equal(t, testBaseURL, navs[0].Value)
	})

	t.Run("LeavesForeignPages", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) { return "about:blank", nil }

		require.NoError(t, newTestNavigator(t, d).gotoHome(context.Background()))
		require.Len(t, d.MethodCalls("Navigate"), 1)
	})
}

func TestGotoConversation(t *testing.T) {
	t.Run("SkipsNavigationWhenAlreadyThere", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) {
			return testBaseURL + "/c/abc?model=auto", nil
		}

		require.NoError(t, newTestNavigator(t, d).gotoConversation(context.Background(), "abc"))
		assert.Empty(t, d.MethodCalls("Navigate"))
	})

	t.Run("FailsWhenPageRedirectsAway", func(t *testing.T) {
		d := startedFake(t)
		// Unknown ids bounce back to the home surface.
		d.LocationFunc = func() (string, error) { return testBaseURL, nil }

		err := newTestNavigator(t, d).gotoConversation(context.Background(), "nope")

		require.ErrorIs(t, err, ErrNavigation)
		assert.Contains(t, err.Error(), "timed out waiting for conversation to load")
	})

	t.Run("SwallowsSlowHistoryRendering", func(t *testing.T) {
		d := startedFake(t)
		target := testBaseURL + "/c/abc"
		d.LocationFunc = func() (string, error) { return target, nil }
		d.WaitVisibleFunc = func(selector string) error {
			if strings.Contains(selector, "conversation-turn") {
				return context.DeadlineExceeded
			}
			return nil
		}

		require.NoError(t, newTestNavigator(t, d).gotoConversation(context.Background(), "abc"),
			"an empty or slow history must not fail the cycle")
	})
}

func TestSetTemporaryChat(t *testing.T) {
	// evalVisible answers the navigator's presence probes: visible lists the
	// aria-labels that should report present.
	evalVisible := func(d *browsertest.FakeDriver, visible ...string) {
		d.EvaluateFunc = func(expression string, out interface{}) error {
			for _, label := range visible {
				if strings.Contains(expression, label) {
					return browsertest.SetResult(out, true)
				}
			}
			return browsertest.SetResult(out, false)
		}
	}

	t.Run("AlreadyOnIsSuccess", func(t *testing.T) {
		d := startedFake(t)
		evalVisible(d, "Turn off temporary chat")

		require.NoError(t, newTestNavigator(t, d).setTemporaryChat(context.Background(), true))
		assert.Empty(t, d.MethodCalls("Click"), "no toggle click when already in the desired state")
	})

	t.Run("TogglesOn", func(t *testing.T) {
		d := startedFake(t)
		evalVisible(d) // neither state visible: probe says not yet on

		require.NoError(t, newTestNavigator(t, d).setTemporaryChat(context.Background(), true))

		clicks := d.MethodCalls("Click")
		require.Len(t, clicks, 1)
		assert.Equal(t, tempChatOnSelector, clicks[0].Selector)
	})

	t.Run("TogglesOff", func(t *testing.T) {
		d := startedFake(t)
		evalVisible(d)

		require.NoError(t, newTestNavigator(t, d).setTemporaryChat(context.Background(), false))

		clicks := d.MethodCalls("Click")
		require.Len(t, clicks, 1)
		assert.Equal(t, tempChatOffSelector, clicks[0].Selector)
	})

	t.Run("MissingToggleFails", func(t *testing.T) {
		d := startedFake(t)
		d.WaitVisibleFunc = func(selector string) error {
			if selector == tempChatAnySelector {
				return context.DeadlineExceeded
			}
			return nil
		}

		err := newTestNavigator(t, d).setTemporaryChat(context.Background(), true)

		require.ErrorIs(t, err, ErrNavigation)
		assert.Contains(t, err.Error(), "temporary chat toggle not found")
	})

	t.Run("StateNeverChangingFails", func(t *testing.T) {
		d := startedFake(t)
		evalVisible(d)
		d.WaitVisibleFunc = func(selector string) error {
			if selector == tempChatOffSelector {
				return context.DeadlineExceeded
			}
			return nil
		}

		err := newTestNavigator(t, d).setTemporaryChat(context.Background(), true)

		require.ErrorIs(t, err, ErrNavigation)
		assert.Contains(t, err.Error(), "state did not change")
	})
}

func TestPrepare(t *testing.T) {
	t.Run("ComposerMissingFails", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) { return testBaseURL, nil }
		d.WaitVisibleFunc = func(selector string) error {
			if selector == ComposerSelector {
				return context.DeadlineExceeded
			}
			return nil
		}

		err := newTestNavigator(t, d).prepare(context.Background(), Request{Message: "hi"})

		require.ErrorIs(t, err, ErrComposer)
		assert.Contains(t, err.Error(), "check session token")
	})

	t.Run("TemporaryChatRequested", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) { return testBaseURL, nil }
		d.EvaluateFunc = func(expression string, out interface{}) error {
			return browsertest.SetResult(out, false)
		}

		enabled := true
		err := newTestNavigator(t, d).prepare(context.Background(), Request{
			Message:       "hi",
			TemporaryChat: &enabled,
		})

		require.NoError(t, err)
		clicks := d.MethodCalls("Click")
		require.Len(t, clicks, 1)
		assert.Equal(t, tempChatOnSelector, clicks[0].Selector)
	})

	t.Run("NilTemporaryChatLeavesToggleAlone", func(t *testing.T) {
		d := startedFake(t)
		d.LocationFunc = func() (string, error) { return testBaseURL, nil }

		require.NoError(t, newTestNavigator(t, d).prepare(context.Background(), Request{Message: "hi"}))
		assert.Empty(t, d.MethodCalls("Click"))
		for _, call := range d.MethodCalls("WaitVisible") {
			assert.NotContains(t, call.Selector, "temporary chat")
		}
	})
}

func TestNavigatorTrimsBaseURL(t *testing.T) {
	d := startedFake(t)
	nav := newTestNavigator(t, d) // constructed with a trailing slash
	assert.Equal(t, testBaseURL, nav.baseURL)
	assert.False(t, strings.HasSuffix(nav.baseURL, "/"))
}
