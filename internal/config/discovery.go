package config

import (
	"errors"
	"os"
	"path/filepath"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "GPGBRIDGE_CONFIG"

var ErrNotFound = errors.New("no config found")

// Candidates lists the places Discover looks, in priority order.
func Candidates() []string {
	var out []string
	if p := os.Getenv(EnvConfig); p != "" {
		out = append(out, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, ".config", "gpgbridge", "config.yaml"))
	}
	return append(out, "/etc/gpgbridge/config.yaml", "./config.yaml")
}

// Discover returns explicit when set, otherwise the first existing
// candidate. ErrNotFound means the caller should run on Defaults.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range Candidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// LoadOrDefault loads the discovered config, or Defaults when none exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Discover(explicit)
	if errors.Is(err, ErrNotFound) {
		cfg := Defaults()
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil && filepath.IsAbs(dir) {
		return filepath.Join(dir, "gpgbridge", "prefs.db")
	}
	return filepath.Join(".", "data", "prefs.db")
}
