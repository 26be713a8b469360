package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/netmirror/internal/session"
)

// ErrAttemptsUnavailable is returned when attempt history is requested and
// no database is configured.
var ErrAttemptsUnavailable = errors.New("attempt history requires a database")

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *ErrValidation
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRetryUnavailable),
		errors.Is(err, session.ErrSettingsUnavailable):
		return http.StatusConflict
	case errors.Is(err, session.ErrActionNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, session.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, ErrAttemptsUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
