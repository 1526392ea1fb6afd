package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
)

// FileRecord is one regular file selected for backup.
type FileRecord struct {
	Path    string // absolute path on disk
	RelPath string // slash-separated path relative to the source root
	Size    int64
}

// Listing is the result of Enumerate.
type Listing struct {
	Root       string
	Files      []FileRecord
	TotalBytes int64
	Skipped    []string // unreadable paths that were left out
}

type accumulator struct {
	mu      sync.Mutex
	files   []FileRecord
	total   int64
	skipped []string
}

func (a *accumulator) add(rec FileRecord) {
	a.mu.Lock()
	a.files = append(a.files, rec)
	a.total += rec.Size
	a.mu.Unlock()
}

func (a *accumulator) skip(path string) {
	a.mu.Lock()
	a.skipped = append(a.skipped, path)
	a.mu.Unlock()
}

// Enumerate walks root recursively and returns every regular file allowed by filter.
// Symbolic links are never followed. An existing but empty tree yields an empty listing.
func Enumerate(root string, filter pattern.Filter) (*Listing, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, backuperr.IO("enumerate", root, err)
	}
	if _, err := VerifyDirectory(abs); err != nil {
		return nil, err
	}

	// Resolve a symlinked root so the walk can descend into it
	if linkInfo, err := os.Lstat(abs); err == nil && linkInfo.Mode()&os.ModeSymlink != 0 {
		if target, err := filepath.EvalSymlinks(abs); err == nil {
			abs = target
		}
	}

	acc := &accumulator{}
	err = filepath.WalkDir(abs, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return backuperr.FromOS("enumerate", path, err)
			}
			if os.IsPermission(err) {
				acc.skip(path)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return backuperr.FromOS("enumerate", path, err)
		}

		if d.Type()&os.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return backuperr.IO("enumerate", path, err)
		}
		rel = filepath.ToSlash(rel)
		if !filter.Allows(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			acc.skip(path)
			return nil
		}
		acc.add(FileRecord{Path: path, RelPath: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}

	sort.Slice(acc.files, func(i, j int) bool { return acc.files[i].RelPath < acc.files[j].RelPath })

	return &Listing{
		Root:       abs,
		Files:      acc.files,
		TotalBytes: acc.total,
		Skipped:    acc.skipped,
	}, nil
}
