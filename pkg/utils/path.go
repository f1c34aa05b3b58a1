package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathComponent checks that name can be used as a single directory
// name: it must be non-empty, must not be "." or "..", and must not contain a
// path separator. Folder display names and resource names are user-chosen, so
// they are checked before being joined under the workspace root.
func ValidatePathComponent(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("path component cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("path component %q is not allowed", name)
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("path component %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("path component %q contains a NUL byte", name)
	}
	return nil
}

// IsWithinBase reports whether path is strictly below base. The base itself
// is not within base. Both paths are cleaned first, so "/w/../x" is not
// within "/w" and "/workspace2" is not within "/workspace".
//
// Example usage:
//
//	if !IsWithinBase(root, entry.MountPath) {
//		continue // not ours
//	}
func IsWithinBase(base, path string) bool {
	if base == "" || path == "" {
		return false
	}
	cleanBase := filepath.Clean(base)
	cleanPath := filepath.Clean(path)
	if cleanPath == cleanBase {
		return false
	}
	prefix := cleanBase
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(cleanPath, prefix)
}

// SecureJoin safely joins path elements and ensures the result stays within the base directory.
// Unlike filepath.Join, this function validates that the result doesn't escape the base through
// directory traversal.
//
// Example usage:
//
//	safePath, err := SecureJoin("/home/u/workspace", "proj", "raw", "logs")
//	if err != nil {
//		return fmt.Errorf("invalid path combination: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if fullPath != cleanBase && !IsWithinBase(cleanBase, fullPath) {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// IsEmptyDir reports whether path is an existing directory with no entries.
func IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}

	names, err := f.Readdirnames(1)
	if len(names) > 0 {
		return false, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return true, nil
}
