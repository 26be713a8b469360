package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/netmirror/internal/config"
	"github.com/jonathan/netmirror/internal/server"
	"github.com/jonathan/netmirror/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a session behind the HTTP control API",
	Long: `Start a session and an HTTP server exposing its view state, retry,
settings and a Server-Sent Events stream of view changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd, lookupEnv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{
		Port:      cfg.Port,
		JWT:       jwtCfg,
		RateLimit: ratelimit.LoadConfig(),
	}, a.session, a.attempts())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return serve(ctx, a, srv)
}

// serve runs the session, the prober and the server until ctx is done or
// one of them fails.
func serve(ctx context.Context, a *app, srv *server.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runProber(gctx) })
	g.Go(func() error { return a.session.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })
	return g.Wait()
}
