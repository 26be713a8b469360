// Package render hands a destination to a web content renderer. The
// destination is taken as-is; whether it is a usable URL is for the renderer
// to find out, and its failures never change the view state.
package render

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single render.
const DefaultTimeout = 30 * time.Second

// Page is what a renderer produced for a destination.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
	HTML        string `json:"-"`
	ContentType string `json:"content_type,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
}

// Renderer displays a destination.
type Renderer interface {
	Render(ctx context.Context, destination string) (*Page, error)
}

// Error represents a failure inside the renderer.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("render error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Nop records the destination without fetching anything.
type Nop struct{}

// Render returns a page carrying only the destination.
func (Nop) Render(_ context.Context, destination string) (*Page, error) {
	return &Page{URL: destination}, nil
}
