// Package observability renders views and diagnostics as text boxes for the
// terminal.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/netmirror/internal/db"
	"github.com/jonathan/netmirror/internal/loader"
	"github.com/jonathan/netmirror/internal/session"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxTextLines caps the page excerpt shown under the ready view
	maxTextLines = 5
)

// Copy shown by the offline and error views.
const (
	OfflineTitle    = "No Internet Connection"
	OfflineSubtitle = "Please check your network and try again."
	ErrorTitle      = "Something Went Wrong"
	SettingsTitle   = "Settings"
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, inner))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to exactly width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// PrintView outputs the screen the user currently sees.
func (p *Printer) PrintView(v session.View) {
	if v.SplashVisible {
		p.printBox("netmirror", "Starting...")
		return
	}

	switch v.State.Kind {
	case loader.KindLoading:
		p.printBox("Loading", fmt.Sprintf("Fetching content (load #%d)", v.State.Generation))

	case loader.KindOffline:
		p.printBox(OfflineTitle, OfflineSubtitle+"\n\n[r] Retry")

	case loader.KindError:
		p.printBox(ErrorTitle, v.State.Message+"\n\n[r] Retry")

	case loader.KindReady:
		p.printReady(v)
	}
}

func (p *Printer) printReady(v session.View) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Destination: %s\n", v.State.DestinationURL))

	switch {
	case v.RenderError != "":
		sb.WriteString(fmt.Sprintf("Renderer:    %s\n", v.RenderError))
	case v.Page != nil:
		if v.Page.Title != "" {
			sb.WriteString(fmt.Sprintf("Title:       %s\n", v.Page.Title))
		}
		if v.Page.ContentType != "" {
			sb.WriteString(fmt.Sprintf("Type:        %s\n", v.Page.ContentType))
		}
		if text := excerpt(v.Page.Text, maxTextLines); text != "" {
			sb.WriteString("\n")
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	default:
		sb.WriteString("Rendering...\n")
	}

	if !v.SettingsOpen {
		sb.WriteString("\n[s] Settings")
		p.printBox("Content", sb.String())
		return
	}

	p.printBox("Content", sb.String())
	var opts strings.Builder
	for _, a := range session.Actions() {
		opts.WriteString(fmt.Sprintf("  • %s\n", a))
	}
	p.printBox(SettingsTitle, opts.String())
}

// excerpt returns the first n non-empty lines of text.
func excerpt(text string, n int) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// PrintResolved outputs the result of a one-shot resolve.
func (p *Printer) PrintResolved(source, destination string) {
	p.printBox("RESOLVED DESTINATION", fmt.Sprintf("Resolver:    %s\nDestination: %s", source, destination))
}

// PrintAttempts outputs recorded load attempts, newest first.
func (p *Printer) PrintAttempts(attempts []db.Attempt) {
	if len(attempts) == 0 {
		p.printBox("LOAD ATTEMPTS", "No attempts recorded.")
		return
	}

	var sb strings.Builder
	for _, a := range attempts {
		line := fmt.Sprintf("#%-4d %-7s %6dms", a.Generation, a.Outcome, a.DurationMs)
		switch {
		case a.Cause != "":
			line += "  " + a.Cause
		case a.Destination != "":
			line += "  " + a.Destination
		}
		sb.WriteString(line + "\n")
	}
	p.printBox("LOAD ATTEMPTS", sb.String())
}
