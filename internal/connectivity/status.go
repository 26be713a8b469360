// Package connectivity reports whether the device has a usable network path.
//
// An Oracle hands out Subscriptions. Each subscription receives the last
// known Status immediately and then every change; it must be closed by the
// subscriber, after which its channel is closed and no further sends happen.
package connectivity

// Status is a single reachability reading.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Oracle is a source of connectivity changes.
type Oracle interface {
	Subscribe() *Subscription
}
