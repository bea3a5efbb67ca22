// Package prefs holds the preference set shared by the privileged dispatcher
// and the settings editor.
package prefs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Recognized preference keys.
const (
	KeyBinaryPath     = "gpg_binary_path"
	KeyInitialized    = "gpg_plugin_initialized"
	KeyLastConfigured = "gpg_last_configured"
	KeyLastUpdated    = "gpg_last_updated"
	KeyDefaultKeyID   = "gpg_key_id"
)

// Keys lists every recognized key.
var Keys = []string{KeyBinaryPath, KeyInitialized, KeyLastConfigured, KeyLastUpdated, KeyDefaultKeyID}

// Recognized reports whether name is a known preference key.
func Recognized(name string) bool {
	return slices.Contains(Keys, name)
}

// Change describes one committed preference write.
type Change struct {
	Name    string
	Value   string
	Deleted bool
}

// Observer is notified after a change commits. It must not block.
type Observer func(Change)

// Service is a named string preference store.
type Service interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
	All(ctx context.Context) (map[string]string, error)
	Subscribe(fn Observer) (cancel func())
}

// observers is the subscriber list embedded by every Service implementation.
type observers struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Observer
}

func (o *observers) Subscribe(fn Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer)
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) notify(c Change) {
	o.mu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Touch records t as the timestamp preference name.
func Touch(ctx context.Context, s Service, name string, t time.Time) error {
	return s.Set(ctx, name, t.UTC().Format(time.RFC3339Nano))
}

// Timestamp parses the timestamp stored under name. ok is false when the key
// is absent or unparseable.
func Timestamp(ctx context.Context, s Service, name string) (time.Time, bool, error) {
	v, found, err := s.Get(ctx, name)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	t, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Stale reports whether the preferences changed after the capability was last
// configured. A never-configured session counts as configured at the zero
// time; without a parseable last-updated stamp nothing is stale.
func Stale(ctx context.Context, s Service) (bool, error) {
	updated, ok, err := Timestamp(ctx, s, KeyLastUpdated)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", KeyLastUpdated, err)
	}
	if !ok {
		return false, nil
	}
	configured, _, err := Timestamp(ctx, s, KeyLastConfigured)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", KeyLastConfigured, err)
	}
	return configured.Before(updated), nil
}

// Update stores a user-edited value and bumps gpg_last_updated so a
// privileged process sharing the store reconfigures before its next request.
func Update(ctx context.Context, s Service, name, value string) error {
	if err := s.Set(ctx, name, value); err != nil {
		return err
	}
	return Touch(ctx, s, KeyLastUpdated, time.Now())
}

// Remove deletes a user-edited value and bumps gpg_last_updated.
func Remove(ctx context.Context, s Service, name string) error {
	if err := s.Delete(ctx, name); err != nil {
		return err
	}
	return Touch(ctx, s, KeyLastUpdated, time.Now())
}
