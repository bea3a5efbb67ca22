package config

import (
	"time"

	"github.com/mattjoyce/gpgbridge/internal/dispatch"
)

// Relay transports.
const (
	TransportLocal  = "local"
	TransportHTTP   = "http"
	TransportNative = "native"
)

// MemoryState selects the in-memory preference store.
const MemoryState = ":memory:"

// Config represents the complete gpgbridge configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	State      StateConfig      `yaml:"state"`
	API        APIConfig        `yaml:"api"`
	Relay      RelayConfig      `yaml:"relay"`
	Capability CapabilityConfig `yaml:"capability"`
	Events     EventsConfig     `yaml:"events"`
	Tracing    TracingConfig    `yaml:"tracing"`

	// SourcePath is the file the config was loaded from, empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines where preferences are stored.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// Token is the admin bearer token.
	Token  string     `yaml:"token"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// RelayConfig selects how page requests reach the privileged dispatcher.
type RelayConfig struct {
	Transport     string        `yaml:"transport"`
	PrivilegedURL string        `yaml:"privileged_url,omitempty"`
	NativeCommand []string      `yaml:"native_command,omitempty"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CapabilityConfig configures the GnuPG engine.
type CapabilityConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	GnuPGHome string        `yaml:"gnupg_home,omitempty"`
	// BinaryPath seeds gpg_binary_path when the preference is unset.
	BinaryPath string `yaml:"binary_path,omitempty"`
}

// EventsConfig sizes the event bus replay buffer.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// TracingConfig enables OTLP trace export. An empty endpoint disables it.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure"`
}

// Defaults returns a Config with the values used when a key is absent.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "gpgbridge",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: defaultStatePath(),
		},
		API: APIConfig{
			Listen: "127.0.0.1:8737",
		},
		Relay: RelayConfig{
			Transport: TransportLocal,
			Timeout:   dispatch.DefaultTimeout + 5*time.Second,
		},
		Capability: CapabilityConfig{
			Timeout: dispatch.DefaultTimeout,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}
