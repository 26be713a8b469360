// Package resolver fetches the destination from the remote resolver endpoint.
// The endpoint answers a GET with a JSON object whose token_hash field holds
// the base64-encoded destination URL.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathan/netmirror/internal/schemas"
)

// DefaultURL is the resolver endpoint used when none is configured.
const DefaultURL = "https://mobiledetects.com/check.php"

// DefaultTimeout bounds a single resolution.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent is the user agent string for resolver requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; netmirror/1.0)"

// maxBodyBytes caps how much of the response body is read.
const maxBodyBytes = 1 << 20

// Options configures the resolver client.
type Options struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for resolving.
func DefaultOptions() *Options {
	return &Options{
		URL:       DefaultURL,
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Client queries the resolver endpoint.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// NewClient creates a client. A nil opts uses DefaultOptions.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return &Client{
		opts:       o,
		httpClient: &http.Client{Timeout: o.Timeout},
	}
}

// URL returns the endpoint this client queries.
func (c *Client) URL() string {
	return c.opts.URL
}

// Resolve performs one GET against the endpoint and parses the payload. It
// does not look at token_hash beyond its JSON type; see Decode.
func (c *Client) Resolve(ctx context.Context) (*Response, error) {
	parsedURL, err := url.Parse(c.opts.URL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			Kind:    KindNetwork,
			URL:     c.opts.URL,
			Message: "invalid resolver URL",
			Cause:   err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, &Error{
			Kind:    KindNetwork,
			URL:     c.opts.URL,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{
			Kind:    KindNetwork,
			URL:     c.opts.URL,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{
			Kind:    KindNetwork,
			URL:     c.opts.URL,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:    KindNetwork,
			URL:     c.opts.URL,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return Parse(c.opts.URL, body)
}

// Parse turns a raw payload into a Response. source is only used in errors.
func Parse(source string, body []byte) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &Error{Kind: KindMalformed, URL: source, Message: "empty body"}
	}
	if err := schemas.ValidateResolverResponse(body); err != nil {
		return nil, &Error{
			Kind:    KindMalformed,
			URL:     source,
			Message: "unexpected payload shape",
			Cause:   err,
		}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{
			Kind:    KindMalformed,
			URL:     source,
			Message: "failed to parse JSON",
			Cause:   err,
		}
	}
	return &out, nil
}
