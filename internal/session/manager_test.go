// internal/session/manager_test.go
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gptrelay/internal/browser/browsertest"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T, cfg *config.Config, d *browsertest.FakeDriver) *Manager {
	t.Helper()
	return NewManager(cfg, d, "#prompt-textarea", zaptest.NewLogger(t))
}

func configWithToken(token string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Session.Token = token
	return cfg
}

func TestOpenRequiresCredential(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("   "), d)

	err := m.Open(context.Background())

	require.ErrorIs(t, err, ErrNoCredential)
	assert.Empty(t, d.Calls(), "no browser work without a credential")
	assert.False(t, m.IsOpen())
}

func TestOpenRejectsInvalidBaseURL(t *testing.T) {
	d := browsertest.New()
	cfg := configWithToken("tok-123")
	cfg.Session.BaseURL = "not a url"
	m := newTestManager(t, cfg, d)

	err := m.Open(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
	assert.Empty(t, d.Calls(), "the browser never starts for an unusable base URL")
}

func TestOpenInjectsCookiesBeforeNavigation(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)

	require.NoError(t, m.Open(context.Background()))
	assert.True(t, m.IsOpen())

	calls := d.Calls()
	order := map[string]int{}
	for i, call := range calls {
		if _, seen := order[call.Method]; !seen {
			order[call.Method] = i
		}
	}
	require.Contains(t, order, "Start")
	require.Contains(t, order, "SetCookies")
	require.Contains(t, order, "Navigate")
	require.Contains(t, order, "WaitVisible")
	assert.Less(t, order["Start"], order["SetCookies"])
	assert.Less(t, order["SetCookies"], order["Navigate"],
		"the first request must already carry the credential")
	assert.Less(t, order["Navigate"], order["WaitVisible"])

	cookies := d.Cookies()
	require.Len(t, cookies, 2, "one cookie per configured name")
	for _, ck := range cookies {
		assert.Equal(t, "tok-123", ck.Value)
		assert.Equal(t, "chatgpt.com", ck.Domain)
		assert.Equal(t, "/", ck.Path)
		assert.True(t, ck.Secure)
		assert.True(t, ck.HTTPOnly)
	}
	assert.Equal(t, "__Secure-next-auth.session-token", cookies[0].Name)
}

func TestOpenInsecureBaseKeepsCookiesUsable(t *testing.T) {
	d := browsertest.New()
	cfg := configWithToken("tok-123")
	cfg.Session.BaseURL = "http://localhost:3000"
	m := newTestManager(t, cfg, d)

	require.NoError(t, m.Open(context.Background()))

	cookies := d.Cookies()
	require.NotEmpty(t, cookies)
	for _, ck := range cookies {
		assert.Equal(t, "localhost", ck.Domain)
		assert.False(t, ck.Secure, "secure cookies would be dropped on a plain-http base")
	}
}

func TestOpenTwiceFails(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)

	require.NoError(t, m.Open(context.Background()))
	err := m.Open(context.Background())

	require.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestOpenWrapsLaunchFailures(t *testing.T) {
	t.Run("StartFails", func(t *testing.T) {
		d := browsertest.New()
		d.StartErr = errors.New("binary not found")
		m := newTestManager(t, configWithToken("tok-123"), d)

		err := m.Open(context.Background())

		require.ErrorIs(t, err, ErrLaunch)
		assert.False(t, m.IsOpen())
	})

	t.Run("ReadinessFailsAndTearsDown", func(t *testing.T) {
		d := browsertest.New()
		d.WaitVisibleFunc = func(selector string) error {
			return errors.New("challenge page instead of composer")
		}
		m := newTestManager(t, configWithToken("tok-123"), d)

		err := m.Open(context.Background())

		require.ErrorIs(t, err, ErrLaunch)
		assert.Contains(t, err.Error(), "usable")
		assert.Equal(t, 1, d.Stops(), "a half-open browser must not linger")
		assert.False(t, m.IsOpen())
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)
	require.NoError(t, m.Open(context.Background()))

	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))

	assert.Equal(t, 1, d.Stops(), "resources are released exactly once")
	assert.False(t, m.IsOpen())
}

func TestCloseBeforeOpenIsNoOp(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)

	require.NoError(t, m.Close(context.Background()))
	assert.Empty(t, d.Calls())
}

func TestOpenAfterCloseFails(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)
	require.NoError(t, m.Close(context.Background()))

	err := m.Open(context.Background())

	require.ErrorIs(t, err, ErrClosed, "the session is never re-created mid-process")
}

func TestDriverHandsBackTheWiredDriver(t *testing.T) {
	d := browsertest.New()
	m := newTestManager(t, configWithToken("tok-123"), d)
	assert.Same(t, d, m.Driver())
}
