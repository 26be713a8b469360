// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultResolverURL is the endpoint queried when none is configured.
const DefaultResolverURL = "https://mobiledetects.com/check.php"

// DefaultSplashDelay applies when splash_delay_ms is unset. An explicit 0
// hides the splash as soon as the first load settles.
const DefaultSplashDelay = time.Second

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Resolver
	ResolverURL            string `json:"resolver_url,omitempty" validate:"omitempty,url"`   // Endpoint returning {"token_hash": ...}
	ResolverTimeoutSeconds int    `json:"resolver_timeout_seconds,omitempty" validate:"gte=0"` // Bound on a single resolution
	UserAgent              string `json:"user_agent,omitempty"`                              // User agent for resolver and renderer

	// Connectivity
	ConnectivityCheck    *bool  `json:"connectivity_check,omitempty"`                   // Show the offline view (default true)
	ProbeURL             string `json:"probe_url,omitempty" validate:"omitempty,url"`   // Reachability probe target
	ProbeIntervalSeconds int    `json:"probe_interval_seconds,omitempty" validate:"gte=0"`

	// Presentation
	SplashDelayMillis    *int `json:"splash_delay_ms,omitempty" validate:"omitempty,gte=0"` // Splash stays up this long after the first load settles; 0 hides it at once
	UseBrowser           bool `json:"use_browser,omitempty"`                                // Render with headless Chrome instead of plain HTTP
	RenderTimeoutSeconds int  `json:"render_timeout_seconds,omitempty" validate:"gte=0"`    // Bound on a single render

	// Server
	Port        int    `json:"port,omitempty" validate:"gte=0,lte=65535"` // HTTP control server port
	DatabaseURL string `json:"database_url,omitempty"`                    // PostgreSQL URL for attempt diagnostics

	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

var validate = newValidator()

// newValidator reports fields by their JSON keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	check := true
	splash := int(DefaultSplashDelay / time.Millisecond)
	return Config{
		ResolverURL:            DefaultResolverURL,
		ResolverTimeoutSeconds: 15,
		ConnectivityCheck:      &check,
		ProbeURL:               "https://clients3.google.com/generate_204",
		ProbeIntervalSeconds:   5,
		SplashDelayMillis:      &splash,
		RenderTimeoutSeconds:   30,
		Port:                   8080,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' check (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with unset fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.ResolverURL == "" {
		result.ResolverURL = defaults.ResolverURL
	}
	if result.UserAgent == "" {
		result.UserAgent = defaults.UserAgent
	}
	if result.ProbeURL == "" {
		result.ProbeURL = defaults.ProbeURL
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	if result.ResolverTimeoutSeconds == 0 {
		result.ResolverTimeoutSeconds = defaults.ResolverTimeoutSeconds
	}
	if result.ProbeIntervalSeconds == 0 {
		result.ProbeIntervalSeconds = defaults.ProbeIntervalSeconds
	}
	if result.RenderTimeoutSeconds == 0 {
		result.RenderTimeoutSeconds = defaults.RenderTimeoutSeconds
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	if result.ConnectivityCheck == nil && defaults.ConnectivityCheck != nil {
		check := *defaults.ConnectivityCheck
		result.ConnectivityCheck = &check
	}
	if result.SplashDelayMillis == nil && defaults.SplashDelayMillis != nil {
		splash := *defaults.SplashDelayMillis
		result.SplashDelayMillis = &splash
	}

	// Plain bools cannot distinguish unset from false, so they are not merged
	// (CLI flags always win for those).

	return result
}

// ApplyEnv overrides fields from NETMIRROR_* environment variables and
// DATABASE_URL. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string) (*bool, error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		return &b, nil
	}

	str("NETMIRROR_RESOLVER_URL", &c.ResolverURL)
	str("NETMIRROR_USER_AGENT", &c.UserAgent)
	str("NETMIRROR_PROBE_URL", &c.ProbeURL)
	str("DATABASE_URL", &c.DatabaseURL)

	for key, dst := range map[string]*int{
		"NETMIRROR_RESOLVER_TIMEOUT_SECONDS": &c.ResolverTimeoutSeconds,
		"NETMIRROR_PROBE_INTERVAL_SECONDS":   &c.ProbeIntervalSeconds,
		"NETMIRROR_RENDER_TIMEOUT_SECONDS":   &c.RenderTimeoutSeconds,
		"NETMIRROR_PORT":                     &c.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("NETMIRROR_SPLASH_DELAY_MS"); ok && v != "" {
		var splash int
		if err := num("NETMIRROR_SPLASH_DELAY_MS", &splash); err != nil {
			return err
		}
		c.SplashDelayMillis = &splash
	}

	check, err := flag("NETMIRROR_CONNECTIVITY_CHECK")
	if err != nil {
		return err
	}
	if check != nil {
		c.ConnectivityCheck = check
	}

	useBrowser, err := flag("NETMIRROR_USE_BROWSER")
	if err != nil {
		return err
	}
	if useBrowser != nil {
		c.UseBrowser = *useBrowser
	}

	return nil
}

// WithConnectivityCheck reports whether the offline view is enabled.
func (c *Config) WithConnectivityCheck() bool {
	return c.ConnectivityCheck == nil || *c.ConnectivityCheck
}

// ResolverTimeout returns the resolver bound as a duration.
func (c *Config) ResolverTimeout() time.Duration {
	return time.Duration(c.ResolverTimeoutSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// SplashDelay returns how long the splash outlives the first load. Unset
// means DefaultSplashDelay.
func (c *Config) SplashDelay() time.Duration {
	if c.SplashDelayMillis == nil {
		return DefaultSplashDelay
	}
	return time.Duration(*c.SplashDelayMillis) * time.Millisecond
}

// RenderTimeout returns the renderer bound as a duration.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSeconds) * time.Second
}
