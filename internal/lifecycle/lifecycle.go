// Package lifecycle pushes the stored preferences into the capability and
// tracks whether it is usable.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/capability"
	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

// State of the capability as far as this process knows.
type State int

const (
	Unconfigured State = iota
	Configured
	Disabled
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Disabled:
		return "disabled"
	default:
		return "unconfigured"
	}
}

// WarnNoBinaryPath is shown to the user when configuration finds no binary.
const WarnNoBinaryPath = "GPG binary path not specified, functionality will be disabled."

var (
	ErrNoCapability = errors.New("capability not available")
	ErrNoBinaryPath = errors.New("gpg binary path not specified")
	ErrRejected     = errors.New("capability rejected configuration directive")
)

// Warner delivers user-visible warnings.
type Warner interface {
	Warn(msg string)
}

// WarnerFunc adapts a function to Warner.
type WarnerFunc func(msg string)

func (f WarnerFunc) Warn(msg string) { f(msg) }

// Configurator runs the configure sequence. Calls are serialized.
type Configurator struct {
	mu    sync.Mutex
	state State

	capability capability.Capability
	prefs      prefs.Service
	warner     Warner
	now        func() time.Time
	onState    func(State)
	logger     *slog.Logger
}

// Option customizes a Configurator.
type Option func(*Configurator)

// WithClock overrides the time source used for gpg_last_configured.
func WithClock(now func() time.Time) Option {
	return func(c *Configurator) { c.now = now }
}

// WithStateListener registers fn to run after every Configure call with the
// resulting state.
func WithStateListener(fn func(State)) Option {
	return func(c *Configurator) { c.onState = fn }
}

// New returns an Unconfigured configurator. engine may be nil when no engine is
// installed; Configure then always fails.
func New(engine capability.Capability, p prefs.Service, w Warner, opts ...Option) *Configurator {
	c := &Configurator{
		capability: engine,
		prefs:      p,
		warner:     w,
		now:        time.Now,
		logger:     log.WithComponent("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Configurator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configure pushes gpg_binary_path and gpg_plugin_initialized into the
// capability. Only success records gpg_last_configured. It is safe to call
// repeatedly.
func (c *Configurator) Configure(ctx context.Context) error {
	c.mu.Lock()
	err := c.configure(ctx)
	if err != nil {
		c.state = Disabled
	} else {
		c.state = Configured
	}
	state := c.state
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("configuration failed", "error", err)
	} else {
		c.logger.Info("capability configured")
	}
	if c.onState != nil {
		c.onState(state)
	}
	return err
}

func (c *Configurator) configure(ctx context.Context) error {
	if c.capability == nil {
		return ErrNoCapability
	}

	path, _, err := c.prefs.Get(ctx, prefs.KeyBinaryPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", prefs.KeyBinaryPath, err)
	}

	if path == "" {
		if _, err := c.capability.SetConfigValue(ctx, capability.DirectiveInitialized, "false"); err != nil {
			c.logger.Debug("failed to disable capability", "error", err)
		}
		if err := c.prefs.Set(ctx, prefs.KeyInitialized, "false"); err != nil {
			c.logger.Error("failed to store preference", "name", prefs.KeyInitialized, "error", err)
		}
		if c.warner != nil {
			c.warner.Warn(WarnNoBinaryPath)
		}
		return ErrNoBinaryPath
	}

	if err := c.push(ctx, capability.DirectiveBinaryPath, path); err != nil {
		return err
	}
	if err := c.push(ctx, capability.DirectiveInitialized, "true"); err != nil {
		return err
	}

	if err := c.prefs.Set(ctx, prefs.KeyInitialized, "true"); err != nil {
		return fmt.Errorf("store %s: %w", prefs.KeyInitialized, err)
	}
	if err := prefs.Touch(ctx, c.prefs, prefs.KeyLastConfigured, c.now()); err != nil {
		return fmt.Errorf("store %s: %w", prefs.KeyLastConfigured, err)
	}
	return nil
}

func (c *Configurator) push(ctx context.Context, name, value string) error {
	res, err := c.capability.SetConfigValue(ctx, name, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if !capability.Accepted(res) {
		return fmt.Errorf("%w: %s", ErrRejected, name)
	}
	return nil
}

// Observe reconfigures whenever gpg_binary_path changes in the preference
// store. The returned function stops observing.
func (c *Configurator) Observe(ctx context.Context) (cancel func()) {
	return c.prefs.Subscribe(func(ch prefs.Change) {
		c.HandleChange(ctx, ch)
	})
}

// HandleChange reacts to one preference change.
func (c *Configurator) HandleChange(ctx context.Context, ch prefs.Change) {
	switch ch.Name {
	case prefs.KeyBinaryPath:
		_ = c.Configure(ctx)
	case prefs.KeyDefaultKeyID, prefs.KeyInitialized, prefs.KeyLastConfigured, prefs.KeyLastUpdated:
		// read on demand
	default:
		c.logger.Info(fmt.Sprintf("unknown preference '%s' updated", ch.Name))
	}
}
