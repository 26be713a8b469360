package resolver

import (
	"errors"
	"fmt"
)

// Kind classifies why a resolution failed. Every kind is shown to the user
// as the same generic error; the distinction only feeds diagnostics.
type Kind string

const (
	KindNetwork   Kind = "network_failure"
	KindMalformed Kind = "malformed_response"
	KindDecode    Kind = "decode_failure"
)

// Error represents a failed resolution.
type Error struct {
	Kind    Kind
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	target := e.URL
	if target == "" {
		target = "resolver"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s for %s: %s: %v", e.Kind, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s for %s: %s", e.Kind, target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf reports the failure kind of err. Errors that did not originate in
// this package (timeouts, cancellations, transport errors) are treated as
// network failures.
func KindOf(err error) Kind {
	var resolveErr *Error
	if errors.As(err, &resolveErr) {
		return resolveErr.Kind
	}
	return KindNetwork
}
