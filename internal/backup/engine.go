// Package backup runs a full backup: enumerate the source tree, check free
// space, archive the files chunk by chunk in parallel, then merge the chunk
// archives into backup.zip next to the hash manifest.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/audit"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/bandwidth"
	"github.com/substantialcattle5/stillsuit/internal/chunk"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/fs"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/progress"
	"github.com/substantialcattle5/stillsuit/internal/space"
	"github.com/substantialcattle5/stillsuit/internal/workerpool"
)

// Status is the final state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusPartial means the archive was written but some files are missing from it.
	StatusPartial Status = "completed_with_failures"
	StatusFailed  Status = "failed"
)

// Options describes one backup run.
type Options struct {
	SourceDir string
	BackupDir string
	Filter    pattern.Filter

	Compress      bool
	Key           []byte // nil disables encryption
	Integrity     bool
	HashAlgorithm string
	// ManifestPath defaults to <BackupDir>/hashes.json.
	ManifestPath string

	ChunkSize int // below one selects the default of 20
	Workers   int // zero or negative means one task per chunk at once
	// SpaceMarginPercent is the admission margin; negative selects the default.
	SpaceMarginPercent float64
	Limiter            *bandwidth.Limiter
	ProgressInterval   time.Duration
}

// Result summarises a run.
type Result struct {
	Archive      string
	ManifestPath string
	Files        int   // files written to the archive
	Selected     int   // files chosen by the filters
	Bytes        int64 // bytes selected
	Chunks       int
	Failures     []backuperr.FileFailure
	Skipped      []string // unreadable paths left out by enumeration
	StaleRemoved []string
	Elapsed      time.Duration
	Status       Status
}

// Engine runs backups. Zero-valued fields fall back to quiet defaults.
type Engine struct {
	Progress *progress.Manager
	Audit    *audit.Logger
	Space    *space.Controller
}

// Run performs the backup described by opts. Errors before any file is
// archived are returned; per-file failures are listed in the result.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	pm := e.progress()
	result := &Result{Status: StatusFailed}

	e.Audit.Log(audit.ActivityBackup, audit.StatusStarted,
		fmt.Sprintf("backup of %s into %s", opts.SourceDir, opts.BackupDir), audit.LevelInfo)

	err := e.run(ctx, opts, pm, result)
	result.Elapsed = time.Since(start)
	if err != nil {
		result.Status = StatusFailed
		e.Audit.Log(audit.ActivityBackup, audit.StatusFailure, err.Error(), audit.LevelError)
		return result, err
	}

	if len(result.Failures) > 0 {
		result.Status = StatusPartial
	} else {
		result.Status = StatusCompleted
	}
	pm.PrintInfo("It took %ds to finish backing up the files.\n", int64(result.Elapsed/time.Second))

	status := audit.StatusSuccess
	level := audit.LevelInfo
	if result.Status != StatusCompleted {
		status, level = audit.StatusFailure, audit.LevelWarn
	}
	e.Audit.Log(audit.ActivityBackup, status,
		fmt.Sprintf("%d of %d files archived into %s (%d failed)", result.Files, result.Selected, result.Archive, len(result.Failures)),
		level)
	return result, nil
}

func (e *Engine) run(ctx context.Context, opts Options, pm *progress.Manager, result *Result) error {
	if opts.Integrity {
		if _, err := chunk.CreateHasher(opts.HashAlgorithm); err != nil {
			return err
		}
	}

	// Source
	if _, err := fs.VerifyDirectory(opts.SourceDir); err != nil {
		return fmt.Errorf("source directory: %w", err)
	}

	// Destination
	if err := fs.CheckAndCreateDir(opts.BackupDir); err != nil {
		return fmt.Errorf("backup directory: %w", err)
	}
	backupDir, err := filepath.Abs(opts.BackupDir)
	if err != nil {
		return backuperr.IO("resolve directory", opts.BackupDir, err)
	}

	removed, err := archive.RemoveStale(backupDir, constants.FinalArchiveName)
	if err != nil {
		return err
	}
	result.StaleRemoved = removed
	for _, path := range removed {
		pm.PrintVerbose("Removed leftover %s", path)
	}

	// Enumerate
	listing, err := fs.Enumerate(opts.SourceDir, opts.Filter)
	if err != nil {
		return err
	}
	result.Selected = len(listing.Files)
	result.Bytes = listing.TotalBytes
	result.Skipped = listing.Skipped
	for _, path := range listing.Skipped {
		pm.PrintWarning("skipping unreadable %s\n", path)
		e.Audit.Log(audit.ActivityFile, audit.StatusFailure, "unreadable: "+path, audit.LevelWarn)
	}
	pm.PrintVerbose("Found %d files (%d bytes) under %s", len(listing.Files), listing.TotalBytes, listing.Root)

	// Admission
	if err := e.controller(opts).Admit(uint64(listing.TotalBytes), backupDir); err != nil {
		return err
	}

	// Chunks
	chunks := chunk.Partition(listing.Files, opts.ChunkSize)
	result.Chunks = len(chunks)

	store := manifest.NewStore()
	var counters progress.Counters
	counters.Reset(listing.TotalBytes)

	proc := &chunk.Processor{
		SourceRoot:    listing.Root,
		DestDir:       backupDir,
		Compress:      opts.Compress,
		Key:           opts.Key,
		Integrity:     opts.Integrity,
		HashAlgorithm: opts.HashAlgorithm,
		Manifest:      store,
		Counters:      &counters,
		Limiter:       opts.Limiter,
	}

	reporter := progress.NewReporter(pm, &counters, opts.ProgressInterval)
	reporter.Start(ctx, "Backing up")

	results := make([]chunk.ChunkResult, len(chunks))
	errs := workerpool.Run(ctx, workerpool.Options{Limit: opts.Workers}, chunks,
		func(ctx context.Context, i int, files []fs.FileRecord) error {
			results[i] = proc.Process(ctx, files)
			return nil
		})
	reporter.Stop()

	var temps []string
	for i, res := range results {
		if errs[i] != nil {
			for _, rec := range chunks[i] {
				result.Failures = append(result.Failures, backuperr.FileFailure{Path: rec.RelPath, Err: errs[i]})
			}
			continue
		}
		result.Failures = append(result.Failures, res.Failures...)
		result.Files += len(res.Archived)
		if res.Archive != "" {
			temps = append(temps, res.Archive)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("backup interrupted, %d partial archives kept for recovery: %w", len(temps), err)
	}

	// Merge
	manifestPath := opts.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(backupDir, constants.ManifestFileName)
	}
	mopts := archive.MergeOptions{Manifest: store, Limit: opts.Workers}
	if opts.Integrity {
		mopts.ManifestPath = manifestPath
		result.ManifestPath = manifestPath
	}

	merger := &archive.Merger{Progress: pm}
	finalPath := filepath.Join(backupDir, constants.FinalArchiveName)
	merged, err := merger.Merge(ctx, finalPath, temps, mopts)
	if err != nil {
		return fmt.Errorf("failed to merge partial archives: %w", err)
	}
	result.Archive = merged.Archive
	result.Files = merged.Entries
	for _, f := range merged.Failures {
		result.Failures = append(result.Failures, f)
		pm.PrintWarning("partial archive %s could not be merged: %v\n", f.Path, f.Err)
	}

	for _, f := range result.Failures {
		level := audit.LevelError
		if errors.Is(f.Err, context.Canceled) {
			level = audit.LevelWarn
		}
		e.Audit.Log(audit.ActivityFile, audit.StatusFailure,
			fmt.Sprintf("%s (%s)", f.Error(), backuperr.KindOf(f.Err)), level)
	}
	return nil
}

func (e *Engine) progress() *progress.Manager {
	if e.Progress != nil {
		return e.Progress
	}
	return progress.NewManager(progress.Options{Quiet: true})
}

func (e *Engine) controller(opts Options) *space.Controller {
	if e.Space != nil {
		return e.Space
	}
	return space.NewController(opts.SpaceMarginPercent)
}
