// Package archive owns the zip files produced by a backup run: the per-chunk
// temporary archives, the shared writer they are merged through, and the
// final archive read back by restore.
package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// TempName returns a fresh temporary archive path inside dir.
func TempName(dir string) string {
	return filepath.Join(dir, constants.TempArchivePrefix+uuid.NewString()+constants.TempArchiveExtension)
}

// IsTemporary reports whether name looks like a temporary archive.
func IsTemporary(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, constants.TempArchivePrefix) &&
		strings.HasSuffix(base, constants.TempArchiveExtension)
}

// FindTemporary lists the temporary archives left in dir, sorted by name.
func FindTemporary(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, backuperr.FromOS("scan for temporary archives", dir, err)
	}

	var temps []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsTemporary(e.Name()) {
			temps = append(temps, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(temps)
	return temps, nil
}

// RemoveStale deletes leftover temporary archives and a half-written final
// archive from dir. It returns the paths it removed.
func RemoveStale(dir, finalName string) ([]string, error) {
	temps, err := FindTemporary(dir)
	if err != nil {
		return nil, err
	}
	candidates := append(temps, filepath.Join(dir, finalName+constants.PartialSuffix))

	var removed []string
	for _, path := range candidates {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = append(removed, path)
		case os.IsNotExist(err):
		default:
			return removed, backuperr.FromOS("remove stale archive", path, err)
		}
	}
	return removed, nil
}
