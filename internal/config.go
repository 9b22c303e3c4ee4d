package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/mise/internal/clientsync"
)

// Auth modes for requests to the recipe backend.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Backend   BackendConfig     `yaml:"backend" toml:"backend"`
	UI        UIConfig          `yaml:"ui" toml:"ui"`
	Sync      SyncConfig        `yaml:"sync" toml:"sync"`
	Telemetry TelemetryConfig   `yaml:"telemetry" toml:"telemetry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if err := c.UI.Validate(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
	// CORSOrigins may read the calendar feed from other origins.
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackendConfig describes the recipe REST endpoint.
type BackendConfig struct {
	// BaseURL is the recipe collection, e.g. http://127.0.0.1:8000/recipes.
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// AuthConfig holds backend authentication configuration.
//
// Mode controls the Authorization header sent to the backend:
//   - "disabled" (default): no header.
//   - "token": "Bearer <Token>"; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when a bearer token is sent.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// UIConfig holds presentation settings shared by the web and terminal views.
type UIConfig struct {
	NoticeTTL time.Duration `yaml:"notice_ttl" toml:"notice_ttl"`
	// TemplatesDir overrides the embedded page templates and is watched for
	// changes.
	TemplatesDir     string        `yaml:"templates_dir" toml:"templates_dir"`
	CalendarThrottle time.Duration `yaml:"calendar_throttle" toml:"calendar_throttle"`
}

// Validate validates the UI configuration.
func (c *UIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NoticeTTL, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.CalendarThrottle, validation.Min(time.Duration(0))),
	)
}

// SyncConfig tunes request ordering and fan-out.
type SyncConfig struct {
	// Ordering is one of "none", "drop-stale" or "cancel".
	Ordering                string `yaml:"ordering" toml:"ordering"`
	CommentFetchConcurrency int    `yaml:"comment_fetch_concurrency" toml:"comment_fetch_concurrency"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	orderings := make([]any, 0, len(clientsync.Orderings))
	for _, o := range clientsync.Orderings {
		orderings = append(orderings, string(o))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Ordering, validation.In(orderings...)),
		validation.Field(&c.CommentFetchConcurrency, validation.Required, validation.Min(1), validation.Max(32)),
	)
}

// OrderingPolicy returns the parsed ordering policy.
func (c *SyncConfig) OrderingPolicy() clientsync.Ordering {
	o, err := clientsync.ParseOrdering(c.Ordering)
	if err != nil {
		return clientsync.OrderingCancel
	}
	return o
}

// TelemetryConfig toggles OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Validate validates the telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServiceName, validation.When(c.Enabled, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000/recipes",
			Timeout: 10 * time.Second,
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		UI: UIConfig{
			NoticeTTL:        clientsync.DefaultNoticeTTL,
			CalendarThrottle: 2 * time.Second,
		},
		Sync: SyncConfig{
			Ordering:                string(clientsync.OrderingCancel),
			CommentFetchConcurrency: 4,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mise",
		},
	}
}
