package loader

import "fmt"

// Kind identifies which of the four views is authoritative.
type Kind string

const (
	KindLoading Kind = "loading"
	KindOffline Kind = "offline"
	KindError   Kind = "error"
	KindReady   Kind = "ready"
)

// ErrorMessage is the single user-facing message for every resolver failure.
const ErrorMessage = "We couldn't load the content. Try again later."

// State is the current view state. Message is set only for KindError and
// DestinationURL only for KindReady. Generation is the load that produced
// the state; it is zero before the first load starts.
type State struct {
	Kind           Kind   `json:"kind"`
	Message        string `json:"message,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`
	Generation     uint64 `json:"generation"`
}

// LoadingState returns a loading state for generation gen.
func LoadingState(gen uint64) State {
	return State{Kind: KindLoading, Generation: gen}
}

// OfflineState returns an offline state.
func OfflineState(gen uint64) State {
	return State{Kind: KindOffline, Generation: gen}
}

// ErrorState returns an error state carrying the generic message.
func ErrorState(gen uint64) State {
	return State{Kind: KindError, Message: ErrorMessage, Generation: gen}
}

// ReadyState returns a state displaying destination.
func ReadyState(gen uint64, destination string) State {
	return State{Kind: KindReady, DestinationURL: destination, Generation: gen}
}

// CanRetry reports whether the retry affordance is offered in this state.
func (s State) CanRetry() bool {
	return s.Kind == KindOffline || s.Kind == KindError
}

// CanOpenSettings reports whether the settings affordance is offered.
func (s State) CanOpenSettings() bool {
	return s.Kind == KindReady
}

// Valid reports whether s is exactly one well-formed variant.
func (s State) Valid() bool {
	switch s.Kind {
	case KindLoading, KindOffline:
		return s.Message == "" && s.DestinationURL == ""
	case KindError:
		return s.Message != "" && s.DestinationURL == ""
	case KindReady:
		return s.Message == ""
	default:
		return false
	}
}

func (s State) String() string {
	switch s.Kind {
	case KindReady:
		return fmt.Sprintf("ready(%s)#%d", s.DestinationURL, s.Generation)
	case KindError:
		return fmt.Sprintf("error#%d", s.Generation)
	default:
		return fmt.Sprintf("%s#%d", s.Kind, s.Generation)
	}
}
