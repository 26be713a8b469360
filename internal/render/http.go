package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxPageBytes caps how much of a destination is read.
const maxPageBytes = 8 << 20

// HTTPRenderer fetches the destination without running scripts. It is the
// fallback when no browser is available.
type HTTPRenderer struct {
	client    *http.Client
	userAgent string
}

// NewHTTPRenderer creates a plain HTTP renderer. A nil client gets one with
// DefaultTimeout.
func NewHTTPRenderer(client *http.Client, userAgent string) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPRenderer{client: client, userAgent: userAgent}
}

// Render fetches destination and extracts text from HTML responses.
func (h *HTTPRenderer) Render(ctx context.Context, destination string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, destination, nil)
	if err != nil {
		return nil, &Error{URL: destination, Message: "failed to create request", Cause: err}
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &Error{URL: destination, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &Error{URL: destination, Message: "failed to read response body", Cause: err}
	}

	page := &Page{
		URL:         resp.Request.URL.String(),
		ContentType: mimetype.Detect(body).String(),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode >= 400 {
		return page, &Error{URL: destination, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	if strings.HasPrefix(page.ContentType, "text/html") {
		page.HTML = string(body)
		if title, text, err := Extract(page.HTML); err == nil {
			page.Title, page.Text = title, text
		}
	}
	return page, nil
}
