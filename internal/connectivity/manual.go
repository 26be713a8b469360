package connectivity

// Manual is an Oracle whose status is set by the caller. It starts out
// Connected.
type Manual struct {
	hub *hub
}

// NewManual returns a Manual oracle reporting Connected.
func NewManual() *Manual {
	return &Manual{hub: newHub(Connected)}
}

// Subscribe registers a new subscriber.
func (m *Manual) Subscribe() *Subscription {
	return m.hub.subscribe()
}

// Set publishes status if it differs from the current one.
func (m *Manual) Set(status Status) {
	m.hub.publish(status)
}

// Status returns the current status.
func (m *Manual) Status() Status {
	return m.hub.current()
}

// Subscribers returns the number of open subscriptions.
func (m *Manual) Subscribers() int {
	return m.hub.subscribers()
}
