package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SQLite locking is unreliable on these.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// checkLocalFilesystem rejects database paths on network mounts. The path
// itself need not exist yet; its closest existing ancestor is inspected.
func checkLocalFilesystem(path string, fsType func(string) (string, error)) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	kind, err := fsType(dir)
	if err != nil {
		// unknown platforms get the benefit of the doubt
		return nil
	}
	if slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(kind))) {
		return fmt.Errorf("preferences database %q is on a %s mount; use a local state.path", path, kind)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor")
		}
		p = parent
	}
}
