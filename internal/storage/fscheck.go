package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when a database path lives on a share
// where SQLite locking cannot be trusted.
var ErrNetworkFilesystem = errors.New("database is on a network filesystem")

var networkFilesystems = map[string]struct{}{
	"cifs":  {},
	"nfs":   {},
	"smbfs": {},
	"smb2":  {},
}

// CheckLocal reports whether the journal database at path (or its closest
// existing parent) is on local disk.
func CheckLocal(path string) error {
	return checkLocalWith(path, detectFilesystemType)
}

func checkLocalWith(path string, detect func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if _, ok := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]; ok {
		return fmt.Errorf("%w: %q is on %s; point state.path at local disk", ErrNetworkFilesystem, path, fsType)
	}
	return nil
}

func closestExisting(path string) (string, error) {
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
			return "", fmt.Errorf("no existing parent")
		}
		p = parent
	}
}
