// Package config loads runtime configuration for the web front-end from the
// environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultManifestURL         = "https://agenttestx-production-19d6.up.railway.app"
	DefaultTitle               = "Mojo Python Dummy"
	DefaultDescription         = "A Python/Flask test site for Mojo Guardian."
	defaultPort                = "8080"
	defaultShutdownGracePeriod = 10 * time.Second
)

// Config captures runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Manifest ManifestConfig
	Site     SiteConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig configures the HTTP listener and template handling.
type ServerConfig struct {
	Port          string        `env:"MOJO_WEB_PORT"`
	CloudRunPort  string        `env:"PORT"`
	Dev           bool          `env:"MOJO_WEB_DEV"`
	DevFallback   bool          `env:"DEV"`
	ReadTimeout   time.Duration `env:"MOJO_WEB_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout  time.Duration `env:"MOJO_WEB_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout   time.Duration `env:"MOJO_WEB_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownGrace time.Duration `env:"MOJO_WEB_SHUTDOWN_GRACE"`
}

// ManifestConfig describes where per-path SEO rules come from.
type ManifestConfig struct {
	APIKey          string        `env:"MOJO_API_KEY"`
	URL             string        `env:"MOJO_MANIFEST_URL" envDefault:"https://agenttestx-production-19d6.up.railway.app"`
	Timeout         time.Duration `env:"MOJO_MANIFEST_TIMEOUT" envDefault:"10s"`
	RulesFile       string        `env:"MOJO_RULES_FILE"`
	RefreshInterval time.Duration `env:"MOJO_REFRESH_INTERVAL" envDefault:"0s"`
	Inject          bool          `env:"MOJO_INJECT" envDefault:"true"`
}

// SiteConfig holds fallback page metadata.
type SiteConfig struct {
	DefaultTitle       string `env:"MOJO_DEFAULT_TITLE" envDefault:"Mojo Python Dummy"`
	DefaultDescription string `env:"MOJO_DEFAULT_DESCRIPTION" envDefault:"A Python/Flask test site for Mojo Guardian."`
	BaseURL            string `env:"MOJO_SITE_URL"`
	GAMeasurementID    string `env:"MOJO_GA_MEASUREMENT_ID"`
	AnalyticsDebug     bool   `env:"MOJO_ANALYTICS_DEBUG"`
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given environment map instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Manifest.APIKey = strings.TrimSpace(c.Manifest.APIKey)
	c.Manifest.URL = strings.TrimSpace(c.Manifest.URL)
	c.Manifest.RulesFile = strings.TrimSpace(c.Manifest.RulesFile)
	c.Site.BaseURL = strings.TrimSpace(c.Site.BaseURL)
	c.Site.GAMeasurementID = strings.TrimSpace(c.Site.GAMeasurementID)
	if c.Manifest.URL == "" {
		c.Manifest.URL = DefaultManifestURL
	}
	if strings.TrimSpace(c.Site.DefaultTitle) == "" {
		c.Site.DefaultTitle = DefaultTitle
	}
	if strings.TrimSpace(c.Site.DefaultDescription) == "" {
		c.Site.DefaultDescription = DefaultDescription
	}
	if c.Server.ShutdownGrace <= 0 {
		c.Server.ShutdownGrace = defaultShutdownGracePeriod
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var fields []string
	if u, err := url.Parse(c.Manifest.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		fields = append(fields, "MOJO_MANIFEST_URL")
	}
	if c.Manifest.Timeout <= 0 {
		fields = append(fields, "MOJO_MANIFEST_TIMEOUT")
	}
	if c.Manifest.RefreshInterval < 0 {
		fields = append(fields, "MOJO_REFRESH_INTERVAL")
	}
	if b := c.Site.BaseURL; b != "" {
		if u, err := url.Parse(b); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			fields = append(fields, "MOJO_SITE_URL")
		}
	}
	if p := c.Server.Port; p != "" && !isPort(p) {
		fields = append(fields, "MOJO_WEB_PORT")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

// ListenPort prefers MOJO_WEB_PORT, then Cloud Run's PORT, else 8080.
func (c Config) ListenPort() string {
	if c.Server.Port != "" {
		return c.Server.Port
	}
	if c.Server.CloudRunPort != "" {
		return c.Server.CloudRunPort
	}
	return defaultPort
}

// DevMode reports whether templates should be reparsed per request.
func (c Config) DevMode() bool {
	return c.Server.Dev || c.Server.DevFallback
}

// RemoteEnabled reports whether the manifest service should be called.
func (c Config) RemoteEnabled() bool {
	return c.Manifest.RulesFile == "" && c.Manifest.APIKey != ""
}

func isPort(p string) bool {
	if len(p) == 0 || len(p) > 5 {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
