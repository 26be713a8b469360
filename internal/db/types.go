package db

import (
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps ListAttempts when no limit is given.
const DefaultListLimit = 50

// Attempt is one row of load_attempts.
type Attempt struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Generation  int64     `json:"generation"`
	Outcome     string    `json:"outcome"`
	Cause       string    `json:"cause,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
