// Package session bundles the state a privileged context owns: the
// capability, its preferences, the configuration lifecycle and the event
// bus. One Session serves every request of a privileged process.
package session

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/events"
	"github.com/mattjoyce/gpgbridge/internal/lifecycle"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

type Session struct {
	Capability capability.Capability
	Prefs      prefs.Service
	Lifecycle  *lifecycle.Configurator
	Events     *events.Hub

	stop   []func()
	logger *slog.Logger
}

// New wires a session. Warnings and state changes from the lifecycle are
// logged and published; preference changes are published by name.
func New(engine capability.Capability, store prefs.Service, hub *events.Hub, opts ...lifecycle.Option) *Session {
	if hub == nil {
		hub = events.NewHub(0)
	}
	s := &Session{
		Capability: engine,
		Prefs:      store,
		Events:     hub,
		logger:     log.WithComponent("session"),
	}

	warner := lifecycle.WarnerFunc(func(msg string) {
		s.logger.Warn(msg)
		hub.Publish(events.TypeLifecycleWarning, events.Warning{Message: msg})
	})
	opts = append([]lifecycle.Option{lifecycle.WithStateListener(func(st lifecycle.State) {
		hub.Publish(events.TypeLifecycleState, events.LifecycleState{State: st.String()})
	})}, opts...)
	s.Lifecycle = lifecycle.New(engine, store, warner, opts...)

	s.stop = append(s.stop, store.Subscribe(func(c prefs.Change) {
		hub.Publish(events.TypePrefsChanged, events.PrefsChanged{Name: c.Name, Deleted: c.Deleted})
	}))
	return s
}

// Start performs the initial configuration and begins reacting to
// preference changes. A failed initial configuration is not fatal: requests
// retry it.
func (s *Session) Start(ctx context.Context) {
	if err := s.Lifecycle.Configure(ctx); err != nil {
		s.logger.Warn("initial configuration failed", "error", err)
	}
	s.stop = append(s.stop, s.Lifecycle.Observe(ctx))
}

// Close detaches the session from the preference store.
func (s *Session) Close() {
	for _, fn := range s.stop {
		fn()
	}
	s.stop = nil
}
