// Package session ties one view-state controller to its collaborators for
// the lifetime of an application run: the connectivity subscription, the
// splash phase, the settings panel and the hand-off to the renderer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/connectivity"
	"github.com/jonathan/netmirror/internal/loader"
	"github.com/jonathan/netmirror/internal/render"
	"golang.org/x/sync/errgroup"
)

// DefaultSplashDelay is how long the splash outlives the first settled load.
const DefaultSplashDelay = time.Second

var (
	// ErrRetryUnavailable is returned when retry is requested outside the
	// offline and error views.
	ErrRetryUnavailable = errors.New("retry is only available from the offline and error views")
	// ErrSettingsUnavailable is returned when the settings panel is opened
	// outside the ready view.
	ErrSettingsUnavailable = errors.New("settings are only available while content is shown")
	// ErrActionNotImplemented is returned for panel actions that exist in
	// the panel but have no behavior.
	ErrActionNotImplemented = errors.New("settings action not implemented")
	// ErrUnknownAction is returned for actions the panel does not offer.
	ErrUnknownAction = errors.New("unknown settings action")
)

// Action is a command offered by the settings panel.
type Action string

const (
	ActionClearCache Action = "clear-cache"
	ActionReload     Action = "reload"
	ActionClose      Action = "close"
)

// Actions lists the panel's commands in display order.
func Actions() []Action {
	return []Action{ActionClearCache, ActionReload, ActionClose}
}

// Options configures a Session.
type Options struct {
	// ID identifies the session. A new one is generated when zero.
	ID                    uuid.UUID
	WithConnectivityCheck bool
	SplashDelay           time.Duration
	RenderTimeout         time.Duration
	Verbose               bool
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Controller *loader.Controller
	// Oracle is required when WithConnectivityCheck is set.
	Oracle   connectivity.Oracle
	Renderer render.Renderer
}

// Session is one application run.
type Session struct {
	id         uuid.UUID
	opts       Options
	controller *loader.Controller
	oracle     connectivity.Oracle
	renderer   render.Renderer
	startedAt  time.Time

	mu             sync.RWMutex
	view           View
	settled        bool
	renderedGen    uint64
	splashTimer    *time.Timer
	subs           map[int]chan View
	nextSub        int
	renderInflight sync.WaitGroup
}

// New creates a session. Its controller must not have been started.
func New(opts Options, deps Deps) (*Session, error) {
	if deps.Controller == nil {
		return nil, fmt.Errorf("session requires a controller")
	}
	if opts.WithConnectivityCheck && deps.Oracle == nil {
		return nil, fmt.Errorf("connectivity check enabled without an oracle")
	}
	if deps.Renderer == nil {
		deps.Renderer = render.Nop{}
	}
	if opts.SplashDelay < 0 {
		opts.SplashDelay = 0
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = render.DefaultTimeout
	}

	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Session{
		id:         id,
		opts:       opts,
		controller: deps.Controller,
		oracle:     deps.Oracle,
		renderer:   deps.Renderer,
		startedAt:  time.Now(),
		view: View{
			SessionID:     id,
			State:         deps.Controller.State(),
			SplashVisible: true,
		},
		subs: make(map[int]chan View),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// View returns the current view snapshot.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.clone()
}

// Run starts the first load and processes events until ctx is done. The
// connectivity subscription is released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	states, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()
	settled, unsubscribeSettled := s.controller.SubscribeSettled()
	defer unsubscribeSettled()

	var sub *connectivity.Subscription
	if s.opts.WithConnectivityCheck {
		sub = s.oracle.Subscribe()
		defer sub.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	if sub != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case status, ok := <-sub.C():
					if !ok {
						return nil
					}
					s.controller.OnConnectivityChange(status)
				}
			}
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case state, ok := <-states:
				if !ok {
					return nil
				}
				s.onState(gctx, state)
			case attempt, ok := <-settled:
				if !ok {
					return nil
				}
				s.onSettled(attempt)
			}
		}
	})

	s.controller.InitiateLoad(gctx)
	log.Printf("[session] %s started", s.id)

	err := g.Wait()
	s.stopSplashTimer()
	s.renderInflight.Wait()
	s.closeSubscribers()
	log.Printf("[session] %s stopped after %s", s.id, time.Since(s.startedAt).Round(time.Millisecond))
	return err
}

// Retry starts a new load if the current view offers retry.
func (s *Session) Retry(ctx context.Context) (uint64, error) {
	gen, ok := s.controller.RetryIfOffered(ctx)
	if !ok {
		return 0, ErrRetryUnavailable
	}
	return gen, nil
}

// OpenSettings opens the settings panel. Only the ready view offers it.
func (s *Session) OpenSettings() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.view.State.CanOpenSettings() {
		return ErrSettingsUnavailable
	}
	if !s.view.SettingsOpen {
		s.view.SettingsOpen = true
		s.publishLocked()
	}
	return nil
}

// CloseSettings closes the settings panel.
func (s *Session) CloseSettings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.SettingsOpen {
		s.view.SettingsOpen = false
		s.publishLocked()
	}
}

// Exec runs a settings panel action.
func (s *Session) Exec(action Action) error {
	switch action {
	case ActionClose:
		s.CloseSettings()
		return nil
	case ActionClearCache, ActionReload:
		s.mu.RLock()
		open := s.view.SettingsOpen
		s.mu.RUnlock()
		if !open {
			return ErrSettingsUnavailable
		}
		return fmt.Errorf("%w: %s", ErrActionNotImplemented, action)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Subscribe returns a channel of view snapshots, starting with the current
// one, and a function that unsubscribes. The channel is closed when Run
// returns.
func (s *Session) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan View, 16)
	ch <- s.view.clone()
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

func (s *Session) onState(ctx context.Context, state loader.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevKind := s.view.State.Kind
	s.view.State = state

	if state.Kind != loader.KindReady {
		s.view.Page = nil
		s.view.RenderError = ""
		s.view.SettingsOpen = false
	}

	if state.Kind == loader.KindReady && (prevKind != loader.KindReady || state.Generation != s.renderedGen) {
		s.renderedGen = state.Generation
		s.startRenderLocked(ctx, state)
	}

	s.publishLocked()
}

// onSettled starts the splash countdown once the first load has finished,
// including a result hidden behind the offline view.
func (s *Session) onSettled(attempt loader.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.settled = true
	if s.opts.Verbose {
		log.Printf("[session] first load #%d settled (%s)", attempt.Generation, attempt.Outcome)
	}
	s.scheduleSplashLocked()
	if !s.view.SplashVisible {
		s.publishLocked()
	}
}

func (s *Session) scheduleSplashLocked() {
	if s.opts.SplashDelay == 0 {
		s.view.SplashVisible = false
		return
	}
	s.splashTimer = time.AfterFunc(s.opts.SplashDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.view.SplashVisible {
			s.view.SplashVisible = false
			s.publishLocked()
		}
	})
}

func (s *Session) stopSplashTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.splashTimer != nil {
		s.splashTimer.Stop()
	}
}

func (s *Session) startRenderLocked(ctx context.Context, state loader.State) {
	s.renderInflight.Add(1)
	go func() {
		defer s.renderInflight.Done()
		rctx, cancel := context.WithTimeout(ctx, s.opts.RenderTimeout)
		defer cancel()

		page, err := s.renderer.Render(rctx, state.DestinationURL)
		if err != nil {
			log.Printf("[session] render of load #%d failed: %v", state.Generation, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		// The view may have moved on while rendering.
		if s.view.State.Kind != loader.KindReady || s.view.State.Generation != state.Generation {
			return
		}
		s.view.Page = page
		if err != nil {
			s.view.RenderError = err.Error()
		}
		s.publishLocked()
	}()
}

func (s *Session) publishLocked() {
	snapshot := s.view.clone()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
