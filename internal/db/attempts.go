package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/loader"
)

// RecordAttempt inserts a load attempt. A zero ID is replaced with a new one.
func (db *DB) RecordAttempt(ctx context.Context, a *Attempt) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO load_attempts (id, session_id, generation, outcome, cause, destination, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		a.ID, a.SessionID, a.Generation, a.Outcome, a.Cause, a.Destination, a.Error, a.DurationMs,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempts of a session, newest first.
func (db *DB) ListAttempts(ctx context.Context, sessionID uuid.UUID, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, generation, outcome, cause, destination, error, duration_ms, created_at
		 FROM load_attempts
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Generation, &a.Outcome, &a.Cause,
			&a.Destination, &a.Error, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}
	return attempts, nil
}

// FromLoader converts a controller attempt into a row for sessionID.
func FromLoader(sessionID uuid.UUID, a loader.Attempt) *Attempt {
	row := &Attempt{
		SessionID:   sessionID,
		Generation:  int64(a.Generation),
		Outcome:     string(a.Outcome),
		Destination: a.Destination,
		DurationMs:  a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		row.Cause = string(a.Cause)
		row.Error = a.Err.Error()
	}
	return row
}

// attemptWriter is the part of DB a SessionRecorder needs.
type attemptWriter interface {
	RecordAttempt(ctx context.Context, a *Attempt) error
}

// SessionRecorder writes controller attempts for one session in the
// background. It implements loader.Recorder.
type SessionRecorder struct {
	mu     sync.RWMutex
	closed bool

	sessionID uuid.UUID
	store     attemptWriter
	queue     chan *Attempt
	done      chan struct{}
	timeout   time.Duration
}

// NewSessionRecorder starts a recorder writing to store. Close must be
// called to flush it.
func NewSessionRecorder(store attemptWriter, sessionID uuid.UUID) *SessionRecorder {
	r := &SessionRecorder{
		sessionID: sessionID,
		store:     store,
		queue:     make(chan *Attempt, 64),
		done:      make(chan struct{}),
		timeout:   5 * time.Second,
	}
	go r.loop()
	return r
}

// RecordAttempt queues a for writing. It never blocks; when the queue is
// full or the recorder is closed the attempt is dropped and logged.
func (r *SessionRecorder) RecordAttempt(a loader.Attempt) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		logDropped(a)
		return
	}
	select {
	case r.queue <- FromLoader(r.sessionID, a):
	default:
		logDropped(a)
	}
}

// Close flushes queued attempts and stops the writer. It is safe to call
// more than once.
func (r *SessionRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *SessionRecorder) loop() {
	defer close(r.done)
	for row := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.store.RecordAttempt(ctx, row); err != nil {
			logWriteFailure(row, err)
		}
		cancel()
	}
}
