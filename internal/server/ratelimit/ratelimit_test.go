package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	cfg.CleanupInterval = 0
	l := NewLimiter(cfg)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l.now = clock.now
	return l, clock
}

func TestBucket_BurstThenDeny(t *testing.T) {
	now := time.Now()
	b := newBucket(3, 1, now)

	for i := 0; i < 3; i++ {
		ok, _, _ := b.take(now)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, remaining, full := b.take(now)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
	assert.True(t, full.After(now))
}

func TestBucket_Refill(t *testing.T) {
	now := time.Now()
	b := newBucket(2, 1, now)
	b.take(now)
	b.take(now)

	ok, _, _ := b.take(now.Add(1100 * time.Millisecond))
	assert.True(t, ok)
	ok, _, _ = b.take(now.Add(1200 * time.Millisecond))
	assert.False(t, ok)
	assert.Greater(t, b.retryAfter(), time.Duration(0))
}

func TestLimiter_RetryRule(t *testing.T) {
	l, clock := newTestLimiter(Defaults())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		ok, info := l.Allow("10.0.0.1", "/retry", "POST")
		require.True(t, ok, "request %d", i+1)
		assert.Equal(t, 10, info.Limit)
	}

	ok, info := l.Allow("10.0.0.1", "/retry", "POST")
	assert.False(t, ok)
	assert.Greater(t, info.RetryAfter, time.Duration(0))

	// 10 per minute refills one token every 6 seconds.
	clock.advance(7 * time.Second)
	ok, _ = l.Allow("10.0.0.1", "/retry", "POST")
	assert.True(t, ok)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Defaults())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("10.0.0.1", "/retry", "POST")
	}
	ok, _ := l.Allow("10.0.0.1", "/retry", "POST")
	assert.False(t, ok)

	ok, _ = l.Allow("10.0.0.2", "/retry", "POST")
	assert.True(t, ok)
}

func TestLimiter_HealthUnlimited(t *testing.T) {
	l, _ := newTestLimiter(Defaults())
	defer l.Stop()

	for i := 0; i < 1000; i++ {
		ok, info := l.Allow("10.0.0.1", "/health", "GET")
		require.True(t, ok)
		assert.Zero(t, info.Limit)
	}
	assert.Zero(t, l.Len())
}

func TestLimiter_DisabledAndWhitelist(t *testing.T) {
	cfg := Defaults()
	cfg.Enabled = false
	l, _ := newTestLimiter(cfg)
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("10.0.0.1", "/retry", "POST")
		assert.True(t, ok)
	}
	l.Stop()

	cfg = Defaults()
	cfg.Whitelist["127.0.0.1"] = true
	l, _ = newTestLimiter(cfg)
	defer l.Stop()
	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("127.0.0.1", "/retry", "POST")
		assert.True(t, ok)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(Defaults())
	defer l.Stop()

	l.Allow("10.0.0.1", "/state", "GET")
	clock.advance(2 * time.Hour)
	l.Allow("10.0.0.2", "/state", "GET")
	require.Equal(t, 2, l.Len())

	l.sweep(clock.now().Add(-time.Hour))
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(nil)
	l.Stop()
	l.Stop()
}

func TestMatch(t *testing.T) {
	rules := DefaultRules()

	r := Match("/retry", "POST", rules)
	require.NotNil(t, r)
	assert.Equal(t, 3, r.Burst)

	r = Match("/settings/reload", "POST", rules)
	require.NotNil(t, r)
	assert.Equal(t, "/settings/", r.Path)

	assert.Nil(t, Match("/retry", "GET", rules))
	assert.Nil(t, Match("/state", "GET", rules))
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"NETMIRROR_RATE_LIMIT_ENABLED":   "true",
		"NETMIRROR_RATE_LIMIT_DEFAULT":   "100",
		"NETMIRROR_RATE_LIMIT_WINDOW":    "30s",
		"NETMIRROR_RATE_LIMIT_RETRY":     "2",
		"NETMIRROR_RATE_LIMIT_WHITELIST": "127.0.0.1, ::1",
	}
	cfg := loadConfig(func(k string) string { return env[k] })

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 100, cfg.DefaultLimit)
	assert.Equal(t, 30*time.Second, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["127.0.0.1"])
	assert.True(t, cfg.Whitelist["::1"])

	r := Match("/retry", "POST", cfg.Rules)
	require.NotNil(t, r)
	assert.Equal(t, 2, r.Limit)
	assert.Equal(t, 2, r.Burst)
}

func TestLoadConfig_Disabled(t *testing.T) {
	cfg := loadConfig(func(k string) string {
		if k == "NETMIRROR_RATE_LIMIT_ENABLED" {
			return "false"
		}
		return ""
	})
	assert.False(t, cfg.Enabled)
}
