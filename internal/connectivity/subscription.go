package connectivity

import "sync"

// subscriptionBuffer is the per-subscriber backlog. Readings are level
// signals, so when it fills the oldest pending reading is replaced.
const subscriptionBuffer = 8

// Subscription is a scoped registration with an Oracle.
type Subscription struct {
	ch     chan Status
	once   sync.Once
	mu     sync.Mutex
	closed bool
	remove func(*Subscription)
}

func newSubscription(remove func(*Subscription)) *Subscription {
	return &Subscription{
		ch:     make(chan Status, subscriptionBuffer),
		remove: remove,
	}
}

// C returns the channel of readings. It is closed by Close.
func (s *Subscription) C() <-chan Status {
	return s.ch
}

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.remove != nil {
			s.remove(s)
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// send delivers status without blocking the publisher.
func (s *Subscription) send(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- status:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// hub fans readings out to subscribers and remembers the last one.
type hub struct {
	mu   sync.Mutex
	last Status
	subs map[*Subscription]struct{}
}

func newHub(initial Status) *hub {
	return &hub{
		last: initial,
		subs: make(map[*Subscription]struct{}),
	}
}

func (h *hub) subscribe() *Subscription {
	sub := newSubscription(h.unsubscribe)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	sub.send(h.last)
	return sub
}

func (h *hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// publish records status and notifies subscribers when it changed. It
// reports whether a change was published.
func (h *hub) publish(status Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == status {
		return false
	}
	h.last = status
	// Sends never block, so holding the lock keeps per-subscriber order.
	for sub := range h.subs {
		sub.send(status)
	}
	return true
}

func (h *hub) current() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *hub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
