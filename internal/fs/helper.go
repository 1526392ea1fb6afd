package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// EnsureDirectory ensures a directory exists, creating it if necessary
func EnsureDirectory(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, constants.StandardDirPerms)
	} else if err != nil {
		return err
	}
	return nil
}

// CheckAndCreateDir fails with a permission error unless the parent of dir
// (or dir itself when it has no parent) is writable, then creates dir.
func CheckAndCreateDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return backuperr.IO("resolve directory", dir, err)
	}

	if info, err := os.Stat(abs); err == nil {
		if !info.IsDir() {
			return backuperr.IO("create directory", abs, fmt.Errorf("not a directory"))
		}
		if !IsWritable(abs) {
			return backuperr.Permission("create directory", abs, fmt.Errorf("insufficient permissions to write to %s", abs))
		}
		return nil
	}

	parent := nearestExisting(filepath.Dir(abs))
	if !IsWritable(parent) {
		return backuperr.Permission("create directory", abs, fmt.Errorf("insufficient permissions to write to %s", parent))
	}
	if err := os.MkdirAll(abs, constants.StandardDirPerms); err != nil {
		return backuperr.FromOS("create directory", abs, err)
	}
	return nil
}

func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// VerifyDirectory verifies that a path exists and is a directory.
func VerifyDirectory(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, backuperr.FromOS("access", path, err)
	}
	if !info.IsDir() {
		return nil, backuperr.IO("access", path, fmt.Errorf("not a directory"))
	}
	return info, nil
}

// IsEmptyDir reports whether dir is missing or has no entries.
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir) // #nosec G304 - caller supplies the directory
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// SafeJoin joins a slash-separated relative name onto root and refuses names
// that would land outside root.
func SafeJoin(root, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	return target, nil
}
