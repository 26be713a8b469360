// Package server provides the HTTP control API over a running session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/config"
	"github.com/jonathan/netmirror/internal/db"
	"github.com/jonathan/netmirror/internal/server/middleware"
	"github.com/jonathan/netmirror/internal/server/ratelimit"
	"github.com/jonathan/netmirror/internal/session"
)

// DefaultPort is the control API port when none is configured.
const DefaultPort = 8080

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// Session is the part of *session.Session the server drives.
type Session interface {
	ID() uuid.UUID
	View() session.View
	Retry(ctx context.Context) (uint64, error)
	OpenSettings() error
	Exec(action session.Action) error
	Subscribe() (<-chan session.View, func())
}

// AttemptStore lists recorded load attempts.
type AttemptStore interface {
	ListAttempts(ctx context.Context, sessionID uuid.UUID, limit int) ([]db.Attempt, error)
}

// Config holds server configuration
type Config struct {
	Port int
	// JWT protects mutating endpoints when it has a secret.
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	session     Session
	attempts    AttemptStore
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	handler     http.Handler
}

// New creates a server for sess. attempts may be nil.
func New(cfg Config, sess Session, attempts AttemptStore) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("server requires a session")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	s := &Server{
		session:     sess,
		attempts:    attempts,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}
	if cfg.JWT.Enabled() {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /attempts", s.handleAttempts)
	mux.Handle("POST /retry", s.protect(http.HandlerFunc(s.handleRetry)))
	mux.Handle("POST /settings/open", s.protect(http.HandlerFunc(s.handleOpenSettings)))
	mux.Handle("POST /settings/{action}", s.protect(http.HandlerFunc(s.handleSettingsAction)))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s (session %s)", s.httpServer.Addr, s.session.ID())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("[server] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("[server] stopped")
	return nil
}

// protect requires a bearer token when authentication is configured.
func (s *Server) protect(next http.Handler) http.Handler {
	if s.jwtService == nil {
		return next
	}
	return middleware.RequireToken(s.jwtService.AsTokenValidator())(next)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their per-endpoint budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[server] %s %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[server] %s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// stateResponse is the body of /state and of each view event.
type stateResponse struct {
	View            session.View `json:"view"`
	CanRetry        bool         `json:"can_retry"`
	CanOpenSettings bool         `json:"can_open_settings"`
}

func newStateResponse(v session.View) stateResponse {
	return stateResponse{
		View:            v,
		CanRetry:        v.CanRetry(),
		CanOpenSettings: v.CanOpenSettings(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, newStateResponse(s.session.View()))
}

// retryResponse is the body of an accepted retry. RequestedBy is the token
// subject when authentication is enabled.
type retryResponse struct {
	Generation  uint64 `json:"generation"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	actor := requester(r)
	gen, err := s.session.Retry(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	log.Printf("[server] retry started load #%d (by %s)", gen, actorOrAnonymous(actor))
	s.jsonResponse(w, http.StatusAccepted, retryResponse{Generation: gen, RequestedBy: actor})
}

func (s *Server) handleOpenSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.session.OpenSettings(); err != nil {
		s.errorFrom(w, err)
		return
	}
	log.Printf("[server] settings opened (by %s)", actorOrAnonymous(requester(r)))
	s.jsonResponse(w, http.StatusOK, newStateResponse(s.session.View()))
}

func (s *Server) handleSettingsAction(w http.ResponseWriter, r *http.Request) {
	action := session.Action(r.PathValue("action"))
	if err := s.session.Exec(action); err != nil {
		s.errorFrom(w, err)
		return
	}
	log.Printf("[server] settings action %q (by %s)", action, actorOrAnonymous(requester(r)))
	s.jsonResponse(w, http.StatusOK, newStateResponse(s.session.View()))
}

// requester returns the authenticated token subject, or "" when the
// endpoint is not protected.
func requester(r *http.Request) string {
	subject, err := middleware.Subject(r)
	if err != nil {
		return ""
	}
	return subject
}

func actorOrAnonymous(subject string) string {
	if subject == "" {
		return "anonymous"
	}
	return subject
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		s.errorFrom(w, ErrAttemptsUnavailable)
		return
	}

	limit := db.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be an integer between 1 and 500"})
			return
		}
		limit = n
	}

	attempts, err := s.attempts.ListAttempts(r.Context(), s.session.ID(), limit)
	if err != nil {
		log.Printf("[server] listing attempts failed: %v", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []db.Attempt{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"session_id": s.session.ID(),
		"attempts":   attempts,
	})
}

// handleEvents streams view snapshots until the client leaves or the
// session ends.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	views, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.WriteComment("ping"); err != nil {
				return
			}
		case v, ok := <-views:
			if !ok {
				sse.WriteClosed(s.session.ID().String())
				return
			}
			if err := sse.WriteEvent("view", newStateResponse(v)); err != nil {
				if !errors.Is(err, ErrEventEncoding) {
					return
				}
				log.Printf("[server] dropping view event: %v", err)
				sse.WriteError("view could not be encoded")
			}
		}
	}
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	s.errorResponse(w, HTTPStatus(err), err.Error())
}

// clientID identifies the caller by IP. X-Forwarded-For is not trusted.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	log.Printf("[rate-limit] limit exceeded: limit=%d reset=%s",
		info.Limit, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
