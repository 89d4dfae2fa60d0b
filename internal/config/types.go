package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernlabs/gateview/internal/logging"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root gateview configuration.
type Config struct {
	Backend BackendConfig  `koanf:"backend"`
	Listen  ListenConfig   `koanf:"listen"`
	Logging logging.Config `koanf:"logging"`
	UI      UIConfig       `koanf:"ui"`
}

// BackendConfig configures the pipeline backend client.
type BackendConfig struct {
	// URL is the backend base URL, including the scheme.
	URL string `koanf:"url"`

	// Timeout bounds each backend request.
	Timeout Duration `koanf:"timeout"`
}

// ListenConfig configures the pipeline event listener.
type ListenConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// UIConfig configures the review TUI.
type UIConfig struct {
	// UsagePollInterval is how often the footer usage meter refreshes.
	UsagePollInterval Duration `koanf:"usage_poll_interval"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port must be 1-65535, got %d", c.Listen.Port)
	}
	if c.UI.UsagePollInterval.Duration() <= 0 {
		return fmt.Errorf("ui.usage_poll_interval must be > 0")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
