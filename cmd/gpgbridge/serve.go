package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/api"
	"github.com/mattjoyce/gpgbridge/internal/auth"
	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/dispatch"
	"github.com/mattjoyce/gpgbridge/internal/events"
	"github.com/mattjoyce/gpgbridge/internal/lock"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/native"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
	"github.com/mattjoyce/gpgbridge/internal/relay"
	"github.com/mattjoyce/gpgbridge/internal/session"
	"github.com/mattjoyce/gpgbridge/internal/storage"
	"github.com/mattjoyce/gpgbridge/internal/tracing"
)

// store is an opened preference store and whatever must be released with it.
type store struct {
	prefs.Service
	closers []func() error
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStore opens the configured preference store. SQLite state is guarded
// by an exclusive lock when exclusive is set.
func openStore(ctx context.Context, cfg *config.Config, exclusive bool) (*store, error) {
	if cfg.State.Path == config.MemoryState {
		return &store{Service: prefs.NewMemoryStore(nil)}, nil
	}

	s := &store{}
	if exclusive {
		l, err := lock.Acquire(lock.ForState(cfg.State.Path))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, l.Release)
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, db.Close)
	s.Service = prefs.NewSQLiteStore(db)
	return s, nil
}

// seedBinaryPath stores the configured gpg path unless one is already set.
func seedBinaryPath(ctx context.Context, cfg *config.Config, p prefs.Service) error {
	if cfg.Capability.BinaryPath == "" {
		return nil
	}
	if _, ok, err := p.Get(ctx, prefs.KeyBinaryPath); err != nil || ok {
		return err
	}
	return prefs.Update(ctx, p, prefs.KeyBinaryPath, cfg.Capability.BinaryPath)
}

// newPrivileged builds the session and dispatcher that own the capability.
func newPrivileged(ctx context.Context, cfg *config.Config, p prefs.Service, hub *events.Hub) (*session.Session, *dispatch.Dispatcher, error) {
	if err := seedBinaryPath(ctx, cfg, p); err != nil {
		return nil, nil, fmt.Errorf("seed %s: %w", prefs.KeyBinaryPath, err)
	}

	var opts []capability.Option
	if cfg.Capability.GnuPGHome != "" {
		opts = append(opts, capability.WithHome(cfg.Capability.GnuPGHome))
	}
	sess := session.New(capability.NewGnuPG(opts...), p, hub)
	sess.Start(ctx)

	var dopts []dispatch.Option
	if cfg.Capability.Timeout > 0 {
		dopts = append(dopts, dispatch.WithTimeout(cfg.Capability.Timeout))
	}
	return sess, dispatch.New(sess, dopts...), nil
}

func apiTokens(cfg *config.Config) []auth.TokenConfig {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return tokens
}

// startTracing installs the exporter configured under tracing. The returned
// func flushes pending spans.
func startTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
		ServiceName:  cfg.Service.Name,
		Version:      version,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Override api.listen")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.SetupWith(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stdout)
	logger := log.WithComponent("main")
	logger.Info("gpgbridge starting", "version", version, "config", cfg.SourcePath, "transport", cfg.Relay.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer startTracing(ctx, cfg, logger)()

	hub := events.NewHub(cfg.Events.Buffer)
	deps := api.Deps{Events: hub}

	var transport relay.Transport
	switch cfg.Relay.Transport {
	case config.TransportLocal:
		st, err := openStore(ctx, cfg, true)
		if err != nil {
			logger.Error("failed to open preferences", "path", cfg.State.Path, "error", err)
			return 1
		}
		defer st.Close()

		sess, disp, err := newPrivileged(ctx, cfg, st, hub)
		if err != nil {
			logger.Error("failed to start dispatcher", "error", err)
			return 1
		}
		defer sess.Close()

		deps.Dispatcher = disp
		deps.State = func() string { return sess.Lifecycle.State().String() }
		transport = relay.LocalTransport{Handler: disp}

	case config.TransportHTTP:
		transport = relay.NewHTTPTransport(cfg.Relay.PrivilegedURL, cfg.API.Auth.Token, cfg.Relay.Timeout)
		logger.Info("forwarding to privileged server", "url", cfg.Relay.PrivilegedURL)

	case config.TransportNative:
		st, err := relay.StartNative(cfg.Relay.NativeCommand)
		if err != nil {
			logger.Error("failed to start native host", "error", err)
			return 1
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Warn("native host exited", "error", err)
			}
		}()
		transport = st
	}
	deps.Relay = relay.NewListener(transport)

	server := api.New(api.Config{
		Listen:  cfg.API.Listen,
		Token:   cfg.API.Auth.Token,
		Tokens:  apiTokens(cfg),
		Version: version,
	}, deps, log.WithComponent("api"))

	logger.Info("gpgbridge running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("api server failed", "error", err)
		return 1
	}
	logger.Info("gpgbridge stopped")
	return 0
}

func runNative(args []string) int {
	fs := flag.NewFlagSet("native", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// stdout carries frames
	log.SetupWith(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer startTracing(ctx, cfg, logger)()

	return serveNative(ctx, cfg, logger)
}

func serveNative(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	st, err := openStore(ctx, cfg, true)
	if err != nil {
		logger.Error("failed to open preferences", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer st.Close()

	sess, disp, err := newPrivileged(ctx, cfg, st, events.NewHub(cfg.Events.Buffer))
	if err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return 1
	}
	defer sess.Close()

	logger.Info("native host ready", "version", version)
	if err := native.NewHost(disp).Serve(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("native host failed", "error", err)
		return 1
	}
	return 0
}

func printServeHelp() {
	fmt.Println("Usage: gpgbridge serve [--config PATH] [--listen ADDR]")
	fmt.Println()
	fmt.Println("Runs the HTTP API. With relay.transport=local the process also owns")
	fmt.Println("the capability and serves /v1/dispatch; with http or native it only")
	fmt.Println("relays page requests to the configured privileged process.")
}

func printNativeHelp() {
	fmt.Println("Usage: gpgbridge native [--config PATH]")
	fmt.Println()
	fmt.Println("Runs the dispatcher as a native messaging host. Requests and replies")
	fmt.Println("are length-prefixed JSON frames on stdin and stdout; logs go to stderr.")
}
