package render

import (
	"context"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserOptions configures the headless browser.
type BrowserOptions struct {
	Timeout time.Duration
	// Settle is how long to wait after the body is ready so scripts can
	// finish drawing the page.
	Settle    time.Duration
	UserAgent string
	Verbose   bool
}

// BrowserRenderer loads destinations in headless Chrome. Requires
// Chrome/Chromium to be installed on the system.
type BrowserRenderer struct {
	opts BrowserOptions
}

// NewBrowserRenderer creates a browser renderer.
func NewBrowserRenderer(opts BrowserOptions) *BrowserRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &BrowserRenderer{opts: opts}
}

// Render navigates to destination and captures the rendered document.
func (b *BrowserRenderer) Render(ctx context.Context, destination string) (*Page, error) {
	if b.opts.Verbose {
		log.Printf("[render] starting headless browser for: %s", destination)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.opts.Timeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(destination),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.opts.Settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &Error{URL: destination, Message: "browser rendering failed", Cause: err}
	}

	page := &Page{URL: location, HTML: html, ContentType: "text/html"}
	if page.URL == "" {
		page.URL = destination
	}
	if title, text, err := Extract(html); err == nil {
		page.Title, page.Text = title, text
	}

	if b.opts.Verbose {
		log.Printf("[render] rendered %s: %d bytes", page.URL, len(html))
	}
	return page, nil
}
