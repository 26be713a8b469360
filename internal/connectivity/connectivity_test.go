package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Status {
	t.Helper()
	select {
	case s, ok := <-sub.C():
		require.True(t, ok, "subscription channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status")
		return Disconnected
	}
}

func TestManual_SubscribeReceivesCurrentStatus(t *testing.T) {
	m := NewManual()
	sub := m.Subscribe()
	defer sub.Close()

	assert.Equal(t, Connected, receive(t, sub))
}

func TestManual_PublishesChangesOnly(t *testing.T) {
	m := NewManual()
	sub := m.Subscribe()
	defer sub.Close()
	_ = receive(t, sub)

	m.Set(Connected)
	m.Set(Disconnected)
	m.Set(Disconnected)
	m.Set(Connected)

	assert.Equal(t, Disconnected, receive(t, sub))
	assert.Equal(t, Connected, receive(t, sub))
	select {
	case s := <-sub.C():
		t.Fatalf("unexpected extra status %v", s)
	default:
	}
}

func TestSubscription_CloseReleases(t *testing.T) {
	m := NewManual()
	sub := m.Subscribe()
	require.Equal(t, 1, m.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, m.Subscribers())

	_, ok := <-sub.C()
	for ok {
		_, ok = <-sub.C()
	}
	assert.False(t, ok)

	// Publishing after close must not panic.
	m.Set(Disconnected)
}

func TestSubscription_OverflowKeepsLatest(t *testing.T) {
	m := NewManual()
	sub := m.Subscribe()
	defer sub.Close()

	for i := 0; i < subscriptionBuffer*3; i++ {
		if i%2 == 0 {
			m.Set(Disconnected)
		} else {
			m.Set(Connected)
		}
	}
	m.Set(Disconnected)

	var last Status
	for len(sub.C()) > 0 {
		last = <-sub.C()
	}
	assert.Equal(t, Disconnected, last)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}

func TestProber_Reachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewProber(ProberOptions{URL: server.URL})
	assert.Equal(t, Connected, p.ProbeOnce(context.Background()))
	assert.Equal(t, Connected, p.Status())
}

func TestProber_UnreachableThenRecovered(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewProber(ProberOptions{URL: server.URL})
	sub := p.Subscribe()
	defer sub.Close()
	require.Equal(t, Connected, receive(t, sub))

	assert.Equal(t, Disconnected, p.ProbeOnce(context.Background()))
	assert.Equal(t, Disconnected, receive(t, sub))

	healthy.Store(true)
	assert.Equal(t, Connected, p.ProbeOnce(context.Background()))
	assert.Equal(t, Connected, receive(t, sub))
}

func TestProber_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := NewProber(ProberOptions{URL: url, Timeout: 200 * time.Millisecond})
	assert.Equal(t, Disconnected, p.ProbeOnce(context.Background()))
}

func TestProber_RunStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewProber(ProberOptions{URL: server.URL, Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
