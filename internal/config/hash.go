package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to the config file.
const ChecksumFile = ".checksums"

var ErrChecksumMismatch = errors.New("config checksum mismatch")

// ChecksumManifest maps config file base names to BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func checksumPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ChecksumFile)
}

// WriteChecksums hashes configPath and records it in the sibling manifest,
// keeping entries for other files. It returns the manifest path and hash.
func WriteChecksums(configPath string) (string, string, error) {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return "", "", err
	}

	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if err != nil {
		return "", "", err
	}
	if manifest == nil {
		manifest = &ChecksumManifest{Version: 1, Hashes: map[string]string{}}
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[filepath.Base(configPath)] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal checksums: %w", err)
	}
	path := checksumPath(configPath)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return path, hash, nil
}

// LoadChecksums reads the manifest in dir. A missing manifest is (nil, nil).
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = map[string]string{}
	}
	return &manifest, nil
}

// VerifyChecksums checks configPath against the sibling manifest when one
// exists. A manifest that does not list the file is an error.
func VerifyChecksums(configPath string) error {
	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if err != nil || manifest == nil {
		return err
	}

	name := filepath.Base(configPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%w: %s is not listed in %s (run 'gpgbridge config hash')", ErrChecksumMismatch, name, ChecksumFile)
	}
	actual, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: %s expected %s, got %s\n"+
			"If you edited this file intentionally, run: gpgbridge config hash", ErrChecksumMismatch, name, expected, actual)
	}
	return nil
}
