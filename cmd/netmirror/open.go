package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jonathan/netmirror/internal/observability"
	"github.com/jonathan/netmirror/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Run a session in the terminal",
	Long: `Start a session and print every view change. Commands are read from
standard input, one per line:

  r            retry (offline and error views only)
  s            open settings (content view only)
  clear-cache  settings action
  reload       settings action
  close        close settings
  q            quit`,
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd, lookupEnv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return open(ctx, a.session, a.runProber, cmd.InOrStdin(), cmd.OutOrStdout())
}

// terminalSession is the part of *session.Session the terminal drives.
type terminalSession interface {
	Run(ctx context.Context) error
	View() session.View
	Retry(ctx context.Context) (uint64, error)
	OpenSettings() error
	Exec(action session.Action) error
	Subscribe() (<-chan session.View, func())
}

// open runs sess, prints its views to out and applies commands from in
// until quit, end of input or ctx is done.
func open(ctx context.Context, sess terminalSession, background func(context.Context) error, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out = &lockedWriter{w: out}
	printer := observability.NewPrinter(out)
	views, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return background(gctx) })
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error {
		for v := range views {
			printer.PrintView(v)
		}
		return nil
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || line == "q" || line == "quit" {
					return nil
				}
				if err := command(gctx, sess, line); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// lockedWriter serializes writes from the view printer and the command loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// command applies one terminal command to sess.
func command(ctx context.Context, sess terminalSession, line string) error {
	switch line {
	case "":
		return nil
	case "r", "retry":
		_, err := sess.Retry(ctx)
		return err
	case "s", "settings":
		return sess.OpenSettings()
	default:
		return sess.Exec(session.Action(line))
	}
}
