package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Rule limits one method on a path. A Path ending in "/" matches by prefix.
type Rule struct {
	Path   string
	Method string
	Limit  int           // requests per Window, 0 means unlimited
	Window time.Duration
	Burst  int // bucket capacity, Limit when 0
}

func (r *Rule) capacity() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Rules           []Rule
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       map[string]bool{},
		Rules:           DefaultRules(),
	}
}

// DefaultRules returns the per-endpoint limits. Retries hit the resolver
// endpoint, so they get the strictest one.
func DefaultRules() []Rule {
	return []Rule{
		{Path: "/health", Method: "GET"},
		{Path: "/retry", Method: "POST", Limit: 10, Window: time.Minute, Burst: 3},
		{Path: "/settings/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
	}
}

// LoadConfig reads overrides from NETMIRROR_RATE_LIMIT_* environment
// variables on top of Defaults().
func LoadConfig() *Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) *Config {
	cfg := Defaults()
	if v, err := strconv.ParseBool(getenv("NETMIRROR_RATE_LIMIT_ENABLED")); err == nil {
		cfg.Enabled = v
	}
	if v, err := strconv.Atoi(getenv("NETMIRROR_RATE_LIMIT_DEFAULT")); err == nil && v >= 0 {
		cfg.DefaultLimit = v
	}
	if v, err := time.ParseDuration(getenv("NETMIRROR_RATE_LIMIT_WINDOW")); err == nil && v > 0 {
		cfg.DefaultWindow = v
	}
	if v, err := strconv.Atoi(getenv("NETMIRROR_RATE_LIMIT_RETRY")); err == nil && v >= 0 {
		for i := range cfg.Rules {
			if cfg.Rules[i].Path == "/retry" {
				cfg.Rules[i].Limit = v
				cfg.Rules[i].Burst = min(cfg.Rules[i].Burst, v)
			}
		}
	}
	for _, ip := range strings.Split(getenv("NETMIRROR_RATE_LIMIT_WHITELIST"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			cfg.Whitelist[ip] = true
		}
	}
	return cfg
}
