package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/lock"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

func executable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func baseConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.State.Path = filepath.Join(t.TempDir(), "prefs.db")
	cfg.Capability.BinaryPath = executable(t)
	return cfg
}

func fields(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestHealthyLocal(t *testing.T) {
	r := New(baseConfig(t), nil).Check(context.Background())
	assert.True(t, r.Valid, "%+v", r.Errors)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestBinaryChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Capability.BinaryPath = filepath.Join(t.TempDir(), "absent")
		r := New(cfg, nil).Check(ctx)
		assert.False(t, r.Valid)
		assert.Contains(t, fields(r.Errors), "capability.binary_path")
	})

	t.Run("not executable", func(t *testing.T) {
		cfg := baseConfig(t)
		plain := filepath.Join(t.TempDir(), "gpg")
		require.NoError(t, os.WriteFile(plain, nil, 0o644))
		cfg.Capability.BinaryPath = plain
		r := New(cfg, nil).Check(ctx)
		require.Len(t, r.Errors, 1)
		assert.Contains(t, r.Errors[0].Message, "not executable")
	})

	t.Run("unset is a warning", func(t *testing.T) {
		cfg := baseConfig(t)
		cfg.Capability.BinaryPath = ""
		r := New(cfg, nil).Check(ctx)
		assert.True(t, r.Valid)
		assert.Contains(t, fields(r.Warnings), "capability.binary_path")
	})

	t.Run("stored preference wins", func(t *testing.T) {
		cfg := baseConfig(t)
		store := prefs.NewMemoryStore(map[string]string{prefs.KeyBinaryPath: "/nonexistent/gpg"})
		r := New(cfg, store).Check(ctx)
		require.False(t, r.Valid)
		assert.Equal(t, prefs.KeyBinaryPath, r.Errors[0].Field)
	})
}

func TestGnuPGHome(t *testing.T) {
	cfg := baseConfig(t)
	home := t.TempDir()
	require.NoError(t, os.Chmod(home, 0o755))
	cfg.Capability.GnuPGHome = home

	r := New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)
	assert.Contains(t, fields(r.Warnings), "capability.gnupg_home")

	cfg.Capability.GnuPGHome = filepath.Join(home, "absent")
	r = New(cfg, nil).Check(context.Background())
	assert.False(t, r.Valid)
}

func TestStateLocked(t *testing.T) {
	cfg := baseConfig(t)
	l, err := lock.Acquire(lock.ForState(cfg.State.Path))
	require.NoError(t, err)
	defer l.Release()

	r := New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0].Message, "locked by pid")
}

func TestMemoryStateWarns(t *testing.T) {
	cfg := baseConfig(t)
	cfg.State.Path = config.MemoryState
	r := New(cfg, nil).Check(context.Background())
	assert.Contains(t, fields(r.Warnings), "state.path")
}

func TestExposedListen(t *testing.T) {
	cfg := baseConfig(t)
	cfg.API.Listen = "0.0.0.0:8737"
	r := New(cfg, nil).Check(context.Background())
	assert.False(t, r.Valid)
	assert.Contains(t, fields(r.Errors), "api.auth")

	cfg.API.Auth.Token = "secret"
	r = New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)

	cfg.API.Listen = "nonsense"
	r = New(cfg, nil).Check(context.Background())
	assert.Contains(t, fields(r.Errors), "api.listen")
}

func TestUnknownScope(t *testing.T) {
	cfg := baseConfig(t)
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "t", Scopes: []string{"events:ro", "root"}}}
	r := New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)
	assert.Equal(t, []string{"api.auth.tokens[0].scopes"}, fields(r.Warnings))
}

func TestRelayHTTP(t *testing.T) {
	cfg := config.Defaults()
	cfg.Relay.Transport = config.TransportHTTP
	cfg.Relay.PrivilegedURL = "ftp://vault"
	r := New(cfg, nil).Check(context.Background())
	assert.Contains(t, fields(r.Errors), "relay.privileged_url")

	cfg.Relay.PrivilegedURL = "http://vault.internal:8737"
	r = New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)
	assert.ElementsMatch(t, []string{"relay.privileged_url", "api.auth.token"}, fields(r.Warnings))
}

func TestRelayNative(t *testing.T) {
	cfg := config.Defaults()
	cfg.Relay.Transport = config.TransportNative
	cfg.Relay.NativeCommand = []string{filepath.Join(t.TempDir(), "missing-host"), "native"}
	r := New(cfg, nil).Check(context.Background())
	assert.Contains(t, fields(r.Errors), "relay.native_command")

	cfg.Relay.NativeCommand = []string{executable(t), "native"}
	r = New(cfg, nil).Check(context.Background())
	assert.True(t, r.Valid)
}
