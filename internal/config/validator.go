package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid configuration")

// Validate reports every problem in cfg at once. The result wraps ErrInvalid.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(cfg.Service.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch cfg.Service.LogFormat {
	case "json", "text":
	default:
		add("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		add("state.path is required")
	}

	if name := unresolved(cfg.API.Auth.Token); name != "" {
		add("api.auth.token: environment variable ${%s} is not set", name)
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			add("api.auth.tokens[%d].token is required", i)
		} else if name := unresolved(tok.Token); name != "" {
			add("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, name)
		}
		if len(tok.Scopes) == 0 {
			add("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	switch cfg.Relay.Transport {
	case TransportLocal:
	case TransportHTTP:
		if cfg.Relay.PrivilegedURL == "" {
			add("relay.privileged_url is required for the http transport")
		}
	case TransportNative:
		if len(cfg.Relay.NativeCommand) == 0 {
			add("relay.native_command is required for the native transport")
		}
	default:
		add("relay.transport must be one of: local, http, native (got %q)", cfg.Relay.Transport)
	}
	if cfg.Relay.Timeout < 0 {
		add("relay.timeout must not be negative")
	}
	if cfg.Capability.Timeout < 0 {
		add("capability.timeout must not be negative")
	}
	if cfg.Events.Buffer < 0 {
		add("events.buffer must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func unresolved(v string) string {
	if m := envVarPattern.FindStringSubmatch(v); len(m) > 1 {
		return m[1]
	}
	return ""
}
