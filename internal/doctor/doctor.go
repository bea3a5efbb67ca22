// Package doctor checks a gpgbridge deployment beyond what config validation
// can see: binaries on disk, listen exposure and store ownership.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattjoyce/gpgbridge/internal/auth"
	"github.com/mattjoyce/gpgbridge/internal/config"
	"github.com/mattjoyce/gpgbridge/internal/lock"
	"github.com/mattjoyce/gpgbridge/internal/prefs"
)

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks a loaded config. Prefs is optional; when set, the stored
// gpg_binary_path is checked as well.
type Doctor struct {
	cfg   *config.Config
	prefs prefs.Service
}

func New(cfg *config.Config, p prefs.Service) *Doctor {
	return &Doctor{cfg: cfg, prefs: p}
}

// Check runs all checks.
func (d *Doctor) Check(ctx context.Context) *Result {
	r := &Result{}

	if d.cfg.Relay.Transport == config.TransportLocal {
		d.checkBinary(ctx, r)
		d.checkGnuPGHome(r)
		d.checkState(r)
	}
	d.checkListen(r)
	d.checkTokens(r)
	d.checkRelay(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkBinary verifies the gpg executable the capability will be given. A
// stored preference wins over the config seed.
func (d *Doctor) checkBinary(ctx context.Context, r *Result) {
	path, field := d.cfg.Capability.BinaryPath, "capability.binary_path"
	if d.prefs != nil {
		if stored, ok, err := d.prefs.Get(ctx, prefs.KeyBinaryPath); err != nil {
			d.addError(r, "capability", prefs.KeyBinaryPath, fmt.Sprintf("read preference: %v", err))
		} else if ok && stored != "" {
			path, field = stored, prefs.KeyBinaryPath
		}
	}

	if path == "" {
		d.addWarning(r, "capability", field, "no gpg binary configured; every request will fail until gpg_binary_path is set")
		return
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		d.addError(r, "capability", field, fmt.Sprintf("gpg binary %s: %v", path, err))
	case info.IsDir():
		d.addError(r, "capability", field, fmt.Sprintf("gpg binary %s is a directory", path))
	case info.Mode()&0o111 == 0:
		d.addError(r, "capability", field, fmt.Sprintf("gpg binary %s is not executable", path))
	}
}

func (d *Doctor) checkGnuPGHome(r *Result) {
	home := d.cfg.Capability.GnuPGHome
	if home == "" {
		return
	}
	info, err := os.Stat(home)
	if err != nil {
		d.addError(r, "capability", "capability.gnupg_home", fmt.Sprintf("%s: %v", home, err))
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		d.addWarning(r, "capability", "capability.gnupg_home",
			fmt.Sprintf("%s is accessible by other users (mode %o); gpg will complain", home, info.Mode().Perm()))
	}
}

func (d *Doctor) checkState(r *Result) {
	if d.cfg.State.Path == config.MemoryState {
		d.addWarning(r, "state", "state.path", "preferences are kept in memory and lost on restart")
		return
	}
	if pid, held := lock.Held(lock.ForState(d.cfg.State.Path)); held {
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("store is locked by pid %d; a second server on this state will not start", pid))
	}
	dir := filepath.Dir(d.cfg.State.Path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		d.addError(r, "state", "state.path", fmt.Sprintf("%s is not a directory", dir))
	}
}

// checkListen flags an unauthenticated API reachable from other hosts.
func (d *Doctor) checkListen(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if loopback(host) {
		return
	}
	if d.cfg.API.Auth.Token == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		sev := d.addWarning
		if d.cfg.Relay.Transport == config.TransportLocal {
			sev = d.addError
		}
		sev(r, "api", "api.auth", fmt.Sprintf("%s is reachable from other hosts and /v1/dispatch has no token", d.cfg.API.Listen))
	}
}

func (d *Doctor) checkTokens(r *Result) {
	known := map[string]bool{auth.ScopeAll: true, auth.ScopeDispatch: true, auth.ScopeEventsRead: true}
	for i, tok := range d.cfg.API.Auth.Tokens {
		for _, s := range tok.Scopes {
			if !known[s] {
				d.addWarning(r, "api", fmt.Sprintf("api.auth.tokens[%d].scopes", i),
					fmt.Sprintf("unknown scope %q grants nothing", s))
			}
		}
	}
}

func (d *Doctor) checkRelay(r *Result) {
	switch d.cfg.Relay.Transport {
	case config.TransportHTTP:
		u, err := url.Parse(d.cfg.Relay.PrivilegedURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			d.addError(r, "relay", "relay.privileged_url",
				fmt.Sprintf("%q is not an http(s) URL", d.cfg.Relay.PrivilegedURL))
			return
		}
		if u.Scheme == "http" && !loopback(u.Hostname()) {
			d.addWarning(r, "relay", "relay.privileged_url", "requests and replies cross the network in plain text")
		}
		if d.cfg.API.Auth.Token == "" {
			d.addWarning(r, "relay", "api.auth.token", "no token is sent to the privileged server")
		}
	case config.TransportNative:
		if len(d.cfg.Relay.NativeCommand) == 0 {
			return
		}
		if _, err := exec.LookPath(d.cfg.Relay.NativeCommand[0]); err != nil {
			d.addError(r, "relay", "relay.native_command", fmt.Sprintf("native host: %v", err))
		}
	}
}

func loopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
