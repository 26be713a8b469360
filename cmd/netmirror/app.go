package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/netmirror/internal/config"
	"github.com/jonathan/netmirror/internal/connectivity"
	"github.com/jonathan/netmirror/internal/db"
	"github.com/jonathan/netmirror/internal/loader"
	"github.com/jonathan/netmirror/internal/render"
	"github.com/jonathan/netmirror/internal/resolver"
	"github.com/jonathan/netmirror/internal/server"
	"github.com/jonathan/netmirror/internal/session"
	"github.com/spf13/cobra"
)

// loadSettings layers defaults, the config file, the environment and the
// command line flags, in that order.
func loadSettings(cmd *cobra.Command, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("resolver-url") {
		cfg.ResolverURL = resolverURL
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}

	merged := cfg.MergeWithDefaults(config.Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func newResolverClient(cfg *config.Config) *resolver.Client {
	return resolver.NewClient(&resolver.Options{
		URL:       cfg.ResolverURL,
		Timeout:   cfg.ResolverTimeout(),
		UserAgent: cfg.UserAgent,
	})
}

func newRenderer(cfg *config.Config) render.Renderer {
	if cfg.UseBrowser {
		return render.NewBrowserRenderer(render.BrowserOptions{
			Timeout:   cfg.RenderTimeout(),
			Settle:    500 * time.Millisecond,
			UserAgent: cfg.UserAgent,
			Verbose:   cfg.Verbose,
		})
	}
	return render.NewHTTPRenderer(&http.Client{Timeout: cfg.RenderTimeout()}, cfg.UserAgent)
}

// app is one fully wired session with its optional collaborators.
type app struct {
	cfg      *config.Config
	session  *session.Session
	prober   *connectivity.Prober
	database *db.DB
	recorder *db.SessionRecorder
}

// newApp wires a session from cfg. The database is optional: when it cannot
// be reached the session runs without attempt history.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	id := uuid.New()

	opts := loader.Options{
		WithConnectivityCheck: cfg.WithConnectivityCheck(),
		Timeout:               cfg.ResolverTimeout(),
		Verbose:               cfg.Verbose,
	}

	if cfg.DatabaseURL != "" {
		database, err := connectDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("[db] attempt history disabled: %v", err)
		} else {
			a.database = database
			a.recorder = db.NewSessionRecorder(database, id)
			opts.Recorder = a.recorder
		}
	}

	controller := loader.NewController(newResolverClient(cfg), opts)

	var oracle connectivity.Oracle
	if cfg.WithConnectivityCheck() {
		a.prober = connectivity.NewProber(connectivity.ProberOptions{
			URL:      cfg.ProbeURL,
			Interval: cfg.ProbeInterval(),
			Verbose:  cfg.Verbose,
		})
		oracle = a.prober
	}

	sess, err := session.New(session.Options{
		ID:                    id,
		WithConnectivityCheck: cfg.WithConnectivityCheck(),
		SplashDelay:           cfg.SplashDelay(),
		RenderTimeout:         cfg.RenderTimeout(),
		Verbose:               cfg.Verbose,
	}, session.Deps{
		Controller: controller,
		Oracle:     oracle,
		Renderer:   newRenderer(cfg),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	a.session = sess
	return a, nil
}

func connectDatabase(ctx context.Context, url string) (*db.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// runProber runs the connectivity prober, if any, until ctx is done.
func (a *app) runProber(ctx context.Context) error {
	if a.prober == nil {
		return nil
	}
	return a.prober.Run(ctx)
}

// attempts returns the attempt store, or nil without a database.
func (a *app) attempts() server.AttemptStore {
	if a.database == nil {
		return nil
	}
	return a.database
}

// Close flushes the recorder and closes the database.
func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}

// lookupEnv is os.LookupEnv, replaced in tests.
var lookupEnv = os.LookupEnv
