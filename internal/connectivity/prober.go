package connectivity

import (
	"context"
	"log"
	"net/http"
	"time"
)

// DefaultProbeURL answers 204 on any connected network.
const DefaultProbeURL = "https://clients3.google.com/generate_204"

// DefaultProbeInterval is how often the prober checks reachability.
const DefaultProbeInterval = 5 * time.Second

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 3 * time.Second

// ProberOptions configures a Prober.
type ProberOptions struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Verbose  bool
}

// Prober is an Oracle that polls a probe URL. The device counts as
// connected only when the probe answers, i.e. the network is up and the
// internet is reachable through it.
type Prober struct {
	opts   ProberOptions
	client *http.Client
	hub    *hub
}

// NewProber creates a prober. It reports Connected until the first probe
// says otherwise.
func NewProber(opts ProberOptions) *Prober {
	if opts.URL == "" {
		opts.URL = DefaultProbeURL
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultProbeInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	return &Prober{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		hub:    newHub(Connected),
	}
}

// Subscribe registers a new subscriber.
func (p *Prober) Subscribe() *Subscription {
	return p.hub.subscribe()
}

// Status returns the last probed status.
func (p *Prober) Status() Status {
	return p.hub.current()
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		p.ProbeOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProbeOnce performs a single probe and publishes the result.
func (p *Prober) ProbeOnce(ctx context.Context) Status {
	status := p.probe(ctx)
	if ctx.Err() != nil {
		// A cancelled probe says nothing about the network.
		return p.hub.current()
	}
	if p.hub.publish(status) {
		log.Printf("[connectivity] %s", status)
	}
	return status
}

func (p *Prober) probe(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.opts.URL, nil)
	if err != nil {
		return Disconnected
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if p.opts.Verbose {
			log.Printf("[connectivity] probe %s failed: %v", p.opts.URL, err)
		}
		return Disconnected
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Disconnected
	}
	return Connected
}
