package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/progress"
	"github.com/substantialcattle5/stillsuit/internal/workerpool"
)

// MergeOptions controls Merge.
type MergeOptions struct {
	// Manifest collects digests. Required when ManifestPath or RebuildManifest is set.
	Manifest *manifest.Store
	// ManifestPath, when set, receives the manifest after the archive is complete.
	ManifestPath string
	// RebuildManifest restores digests from the entry comments of the temporary archives.
	RebuildManifest bool
	// Limit bounds the number of temporary archives read at once.
	Limit int
}

// MergeResult summarises a merge.
type MergeResult struct {
	Archive  string
	Entries  int
	Merged   []string
	Failures []backuperr.FileFailure
}

// Merger combines temporary archives into the final archive.
type Merger struct {
	Progress *progress.Manager
}

// Merge copies every entry of temps into finalPath. The archive is written to
// finalPath.partial and renamed once complete. Temporary archives that could
// not be read are kept on disk and reported in Failures.
func (m *Merger) Merge(ctx context.Context, finalPath string, temps []string, opts MergeOptions) (*MergeResult, error) {
	if (opts.RebuildManifest || opts.ManifestPath != "") && opts.Manifest == nil {
		opts.Manifest = manifest.NewStore()
	}

	partial := finalPath + constants.PartialSuffix
	sw, err := CreateShared(partial)
	if err != nil {
		return nil, err
	}

	errs := workerpool.Run(ctx, workerpool.Options{Limit: opts.Limit}, temps,
		func(ctx context.Context, _ int, temp string) error {
			return m.mergeOne(ctx, sw, temp, opts)
		})

	if err := ctx.Err(); err != nil {
		sw.Abort()
		return nil, err
	}
	if err := sw.Close(); err != nil {
		sw.Abort()
		return nil, err
	}
	if err := os.Rename(partial, finalPath); err != nil {
		sw.Abort()
		return nil, backuperr.FromOS("finalise archive", finalPath, err)
	}

	result := &MergeResult{Archive: finalPath, Entries: sw.Entries()}

	if opts.ManifestPath != "" {
		if err := manifest.Save(opts.Manifest, opts.ManifestPath); err != nil {
			return result, fmt.Errorf("failed to persist manifest: %w", err)
		}
	}

	for i, temp := range temps {
		if errs[i] != nil {
			result.Failures = append(result.Failures, backuperr.FileFailure{Path: temp, Err: errs[i]})
			continue
		}
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			m.warn("could not delete temporary archive %s: %v\n", temp, err)
		}
		result.Merged = append(result.Merged, temp)
	}
	return result, nil
}

func (m *Merger) mergeOne(ctx context.Context, sw *SharedWriter, temp string, opts MergeOptions) error {
	r, err := Open(temp)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, entry := range r.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := entry.Read()
		if err != nil {
			return err
		}
		if err := sw.WriteEntry(entry.Header(), data); err != nil {
			if errors.Is(err, ErrDuplicateEntry) {
				m.warn("skipping %v\n", err)
				continue
			}
			return err
		}
		if opts.RebuildManifest && entry.Comment != "" {
			opts.Manifest.Put(entry.Name, entry.Comment)
		}
	}

	if m.Progress != nil {
		m.Progress.PrintVerbose("Merged %s (%d entries)", temp, len(r.Entries))
	}
	return nil
}

func (m *Merger) warn(format string, args ...interface{}) {
	if m.Progress != nil {
		m.Progress.PrintWarning(format, args...)
	}
}
