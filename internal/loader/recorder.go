package loader

import (
	"time"

	"github.com/jonathan/netmirror/internal/resolver"
)

// AttemptOutcome is how a load ended, from the controller's point of view.
type AttemptOutcome string

const (
	AttemptReady  AttemptOutcome = "ready"
	AttemptError  AttemptOutcome = "error"
	AttemptStale  AttemptOutcome = "stale"
	AttemptMasked AttemptOutcome = "masked"
)

// Attempt is the diagnostic record of one settled load. Cause keeps the
// internal failure kind that the user-facing view hides.
type Attempt struct {
	Generation  uint64
	Outcome     AttemptOutcome
	Cause       resolver.Kind
	Destination string
	Err         error
	Duration    time.Duration
}

// Recorder receives attempts. Implementations are called with the
// controller's lock held and must not call back into the controller; slow
// sinks should hand off to their own goroutine.
type Recorder interface {
	RecordAttempt(Attempt)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Attempt)

// RecordAttempt calls f(a).
func (f RecorderFunc) RecordAttempt(a Attempt) {
	f(a)
}
