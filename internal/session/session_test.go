package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/connectivity"
	"github.com/jonathan/netmirror/internal/loader"
	"github.com/jonathan/netmirror/internal/render"
	"github.com/jonathan/netmirror/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResolver returns the queued results in order, repeating the last.
type scriptedResolver struct {
	mu      sync.Mutex
	results []error
	url     string
}

func (r *scriptedResolver) Resolve(context.Context) (*resolver.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	if err != nil {
		return nil, err
	}
	return resolver.NewResponse(base64.StdEncoding.EncodeToString([]byte(r.url))), nil
}

type recordingRenderer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingRenderer) Render(_ context.Context, destination string) (*render.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, destination)
	if r.err != nil {
		return nil, r.err
	}
	return &render.Page{URL: destination, Title: "Rendered"}, nil
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	session  *Session
	oracle   *connectivity.Manual
	renderer *recordingRenderer
	cancel   context.CancelFunc
	done     chan error
}

func startHarness(t *testing.T, results []error, opts Options) *harness {
	t.Helper()
	res := &scriptedResolver{results: results, url: "https://example.com/x"}
	controller := loader.NewController(res, loader.Options{WithConnectivityCheck: opts.WithConnectivityCheck})
	oracle := connectivity.NewManual()
	renderer := &recordingRenderer{}

	s, err := New(opts, Deps{Controller: controller, Oracle: oracle, Renderer: renderer})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{session: s, oracle: oracle, renderer: renderer, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- s.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
}

func (h *harness) waitFor(t *testing.T, cond func(View) bool) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		last = h.session.View()
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond, "last view: %+v", last)
	return last
}

func kindIs(k loader.Kind) func(View) bool {
	return func(v View) bool { return v.State.Kind == k }
}

func TestSession_LoadsAndRenders(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{WithConnectivityCheck: true})

	v := h.waitFor(t, func(v View) bool { return v.Page != nil })
	assert.Equal(t, loader.KindReady, v.State.Kind)
	assert.Equal(t, "https://example.com/x", v.Page.URL)
	assert.Equal(t, 1, h.renderer.count())
	assert.True(t, v.CanOpenSettings())
	assert.False(t, v.CanRetry())
}

func TestSession_SplashHidesAfterDelay(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{SplashDelay: 50 * time.Millisecond})

	assert.True(t, h.session.View().SplashVisible)
	h.waitFor(t, kindIs(loader.KindReady))
	h.waitFor(t, func(v View) bool { return !v.SplashVisible })
}

func TestSession_SplashHidesAfterError(t *testing.T) {
	h := startHarness(t, []error{errors.New("down")}, Options{})

	h.waitFor(t, func(v View) bool { return v.State.Kind == loader.KindError && !v.SplashVisible })
}

func TestSession_SplashHidesAfterOfflineColdStart(t *testing.T) {
	res := loader.ResolverFunc(func(context.Context) (*resolver.Response, error) {
		time.Sleep(30 * time.Millisecond)
		return nil, errors.New("no route to host")
	})
	controller := loader.NewController(res, loader.Options{WithConnectivityCheck: true})
	oracle := connectivity.NewManual()
	oracle.Set(connectivity.Disconnected)

	s, err := New(Options{WithConnectivityCheck: true, SplashDelay: 20 * time.Millisecond},
		Deps{Controller: controller, Oracle: oracle})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		v := s.View()
		return v.State.Kind == loader.KindOffline && v.State.Generation == 1 && !v.SplashVisible
	}, 2*time.Second, 5*time.Millisecond, "last view: %+v", s.View())
	assert.True(t, s.View().CanRetry())
}

func TestSession_ConcurrentRetryStartsOneLoad(t *testing.T) {
	h := startHarness(t, []error{errors.New("down"), nil}, Options{})
	h.waitFor(t, kindIs(loader.KindError))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.session.Retry(context.Background()); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrRetryUnavailable)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	h.waitFor(t, kindIs(loader.KindReady))
	assert.Equal(t, uint64(2), h.session.View().State.Generation)
}

func TestSession_OfflineHidesPageAndClosesSettings(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{WithConnectivityCheck: true})
	h.waitFor(t, func(v View) bool { return v.Page != nil })
	require.NoError(t, h.session.OpenSettings())

	h.oracle.Set(connectivity.Disconnected)
	v := h.waitFor(t, kindIs(loader.KindOffline))
	assert.Nil(t, v.Page)
	assert.False(t, v.SettingsOpen)
	assert.True(t, v.CanRetry())

	// Reconnecting alone leaves the offline view up.
	h.oracle.Set(connectivity.Connected)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, loader.KindOffline, h.session.View().State.Kind)

	_, err := h.session.Retry(context.Background())
	require.NoError(t, err)
	h.waitFor(t, func(v View) bool { return v.State.Kind == loader.KindReady && v.Page != nil })
	assert.Equal(t, 2, h.renderer.count())
}

func TestSession_ConnectivityIgnoredWhenDisabled(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{WithConnectivityCheck: false})
	h.waitFor(t, kindIs(loader.KindReady))
	assert.Equal(t, 0, h.oracle.Subscribers())

	h.oracle.Set(connectivity.Disconnected)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, loader.KindReady, h.session.View().State.Kind)
}

func TestSession_RetryOnlyFromOfflineOrError(t *testing.T) {
	h := startHarness(t, []error{errors.New("down"), nil}, Options{})
	h.waitFor(t, kindIs(loader.KindError))

	gen, err := h.session.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
	h.waitFor(t, kindIs(loader.KindReady))

	_, err = h.session.Retry(context.Background())
	assert.ErrorIs(t, err, ErrRetryUnavailable)
}

func TestSession_SettingsActions(t *testing.T) {
	h := startHarness(t, []error{errors.New("down"), nil}, Options{})
	h.waitFor(t, kindIs(loader.KindError))

	assert.ErrorIs(t, h.session.OpenSettings(), ErrSettingsUnavailable)
	assert.ErrorIs(t, h.session.Exec(ActionReload), ErrSettingsUnavailable)

	_, err := h.session.Retry(context.Background())
	require.NoError(t, err)
	h.waitFor(t, kindIs(loader.KindReady))

	require.NoError(t, h.session.OpenSettings())
	assert.True(t, h.session.View().SettingsOpen)

	assert.ErrorIs(t, h.session.Exec(ActionClearCache), ErrActionNotImplemented)
	assert.ErrorIs(t, h.session.Exec(ActionReload), ErrActionNotImplemented)
	assert.ErrorIs(t, h.session.Exec(Action("factory-reset")), ErrUnknownAction)

	require.NoError(t, h.session.Exec(ActionClose))
	assert.False(t, h.session.View().SettingsOpen)
}

func TestSession_RenderFailureDoesNotChangeState(t *testing.T) {
	res := &scriptedResolver{results: []error{nil}, url: "not a url"}
	controller := loader.NewController(res, loader.Options{})
	renderer := &recordingRenderer{err: errors.New("cannot navigate")}
	s, err := New(Options{}, Deps{Controller: controller, Renderer: renderer})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() { cancel(); <-done }()

	require.Eventually(t, func() bool { return s.View().RenderError != "" }, 2*time.Second, 5*time.Millisecond)
	v := s.View()
	assert.Equal(t, loader.KindReady, v.State.Kind)
	assert.Equal(t, "not a url", v.State.DestinationURL)
	assert.Contains(t, v.RenderError, "cannot navigate")
}

func TestSession_RunReleasesSubscription(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{WithConnectivityCheck: true})
	h.waitFor(t, kindIs(loader.KindReady))
	require.Equal(t, 1, h.oracle.Subscribers())

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 0, h.oracle.Subscribers())
}

func TestSession_SubscribeStreamsViews(t *testing.T) {
	h := startHarness(t, []error{nil}, Options{})
	views, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-views:
			require.True(t, ok)
			if v.Page != nil {
				assert.Equal(t, "Rendered", v.Page.Title)
				return
			}
		case <-deadline:
			t.Fatal("never saw a rendered view")
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{}, Deps{})
	assert.Error(t, err)

	controller := loader.NewController(&scriptedResolver{results: []error{nil}}, loader.Options{})
	_, err = New(Options{WithConnectivityCheck: true}, Deps{Controller: controller})
	assert.Error(t, err)
}

func TestNew_SessionID(t *testing.T) {
	controller := loader.NewController(&scriptedResolver{results: []error{nil}}, loader.Options{})

	id := uuid.New()
	s, err := New(Options{ID: id}, Deps{Controller: controller})
	require.NoError(t, err)
	assert.Equal(t, id, s.ID())
	assert.Equal(t, id, s.View().SessionID)

	s, err = New(Options{}, Deps{Controller: controller})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID())
}

func TestActions(t *testing.T) {
	assert.Equal(t, []Action{ActionClearCache, ActionReload, ActionClose}, Actions())
}
