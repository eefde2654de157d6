package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/llm
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// ErrUnsafeName is returned by ResolveUnder for names that would escape the base directory.
var ErrUnsafeName = errors.New("name escapes base directory")

// ResolveUnder joins name onto base and rejects absolute names and any name
// that resolves outside base.
func ResolveUnder(base, name string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("empty base directory")
	}
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeName)
	}
	b, err := ExpandHome(base)
	if err != nil {
		return "", err
	}
	b, err = filepath.Abs(b)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	p := filepath.Join(b, name)
	rel, err := filepath.Rel(b, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeName)
	}
	return p, nil
}

// EnsureDir creates dir (after home expansion) with parents and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	d, err := ExpandHome(dir)
	if err != nil {
		return "", err
	}
	d, err = filepath.Abs(d)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", d, err)
	}
	return d, nil
}
