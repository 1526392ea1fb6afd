// Package restore extracts a backup archive into a directory, decrypting and
// verifying every entry. A run that hits an integrity violation stops
// dispatching new entries and never reports success.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/audit"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/chunk"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/fs"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/progress"
	"github.com/substantialcattle5/stillsuit/internal/space"
	"github.com/substantialcattle5/stillsuit/internal/workerpool"
)

// State is a step of a restore run.
type State string

const (
	StateEnumerating        State = "enumerating"
	StateAdmissionCheck     State = "admission_check"
	StateDispatching        State = "dispatching"
	StateDraining           State = "draining"
	StateCompleted          State = "completed"
	StateIntegrityViolation State = "failed_integrity_violation"
	StateIOError            State = "failed_io_error"
)

// Failed reports whether s is a terminal failure state.
func (s State) Failed() bool {
	return s == StateIntegrityViolation || s == StateIOError
}

// Options describes one restore run.
type Options struct {
	// ArchivePath defaults to <BackupDir>/backup.zip.
	BackupDir   string
	ArchivePath string
	RestoreDir  string
	Filter      pattern.Filter

	Key           []byte // nil when the backup is not encrypted
	Integrity     bool
	HashAlgorithm string
	// ManifestPath defaults to <BackupDir>/hashes.json.
	ManifestPath string

	Workers            int
	SpaceMarginPercent float64
	ProgressInterval   time.Duration

	// OnState observes every state transition.
	OnState func(State)
}

// Result summarises a run.
type Result struct {
	RestoreDir string
	Selected   int   // entries chosen by the filters
	Bytes      int64 // stored bytes of the selected entries
	Restored   int
	Failures   []backuperr.FileFailure
	Aborted    bool // dispatch stopped after an integrity violation
	Elapsed    time.Duration
	State      State
}

// Engine runs restores. Zero-valued fields fall back to quiet defaults.
type Engine struct {
	Progress *progress.Manager
	Audit    *audit.Logger
	Space    *space.Controller
}

type run struct {
	opts     Options
	pm       *progress.Manager
	audit    *audit.Logger
	root     string
	store    *manifest.Store
	counters progress.Counters
	abort    atomic.Bool
	restored atomic.Int64
}

// Run restores the archive described by opts. A phase error before any entry
// is written is returned with StateIOError; entry failures end the run in a
// failure state and are returned as an error of the matching kind.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	r := &run{opts: opts, pm: e.progress(), audit: e.Audit}
	result := &Result{RestoreDir: opts.RestoreDir}

	e.Audit.Log(audit.ActivityRestore, audit.StatusStarted,
		fmt.Sprintf("restore into %s", opts.RestoreDir), audit.LevelInfo)

	err := e.execute(ctx, r, result)
	result.Elapsed = time.Since(start)

	if err != nil {
		if !result.State.Failed() {
			r.setState(result, StateIOError)
		}
		e.Audit.Log(audit.ActivityRestore, audit.StatusFailure, err.Error(), audit.LevelError)
		return result, err
	}

	r.setState(result, StateCompleted)
	r.pm.PrintInfo("It took %ds to finish restoring the files.\n", int64(result.Elapsed/time.Second))
	e.Audit.Log(audit.ActivityRestore, audit.StatusSuccess,
		fmt.Sprintf("%d files restored into %s", result.Restored, opts.RestoreDir), audit.LevelInfo)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, r *run, result *Result) error {
	opts := r.opts

	// Enumerating
	r.setState(result, StateEnumerating)
	archivePath := opts.ArchivePath
	if archivePath == "" {
		archivePath = filepath.Join(opts.BackupDir, constants.FinalArchiveName)
	}
	ar, err := archive.Open(archivePath)
	if err != nil {
		return fmt.Errorf("backup archive: %w", err)
	}
	defer ar.Close()

	var entries []archive.Entry
	for _, entry := range ar.Entries {
		if opts.Filter.Allows(entry.Name) {
			entries = append(entries, entry)
			result.Bytes += entry.Size
		}
	}
	result.Selected = len(entries)
	r.pm.PrintVerbose("Selected %d of %d entries (%d bytes) from %s", len(entries), len(ar.Entries), result.Bytes, archivePath)

	// AdmissionCheck
	r.setState(result, StateAdmissionCheck)
	if err := e.controller(opts).Admit(uint64(result.Bytes), opts.RestoreDir); err != nil {
		return err
	}
	if err := fs.CheckAndCreateDir(opts.RestoreDir); err != nil {
		return fmt.Errorf("restore directory: %w", err)
	}
	if r.root, err = filepath.Abs(opts.RestoreDir); err != nil {
		return backuperr.IO("resolve directory", opts.RestoreDir, err)
	}

	if opts.Integrity {
		if _, err := chunk.CreateHasher(opts.HashAlgorithm); err != nil {
			return err
		}
		r.store = r.loadManifest()
	}

	// Dispatching
	r.setState(result, StateDispatching)
	r.counters.Reset(result.Bytes)
	reporter := progress.NewReporter(r.pm, &r.counters, opts.ProgressInterval)
	reporter.Start(ctx, "Restoring")

	errs := workerpool.Run(ctx, workerpool.Options{
		Limit:        opts.Workers,
		Stop:         r.abort.Load,
		OnDispatched: func() { r.setState(result, StateDraining) },
	}, entries, func(ctx context.Context, _ int, entry archive.Entry) error {
		return r.restoreEntry(entry)
	})
	reporter.Stop()

	result.Restored = int(r.restored.Load())
	result.Aborted = r.abort.Load()

	var integrityFailures int
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, backuperr.ErrIntegrity) {
			integrityFailures++
		}
		f := backuperr.FileFailure{Path: entries[i].Name, Err: err}
		result.Failures = append(result.Failures, f)
		if !errors.Is(err, workerpool.ErrNotDispatched) {
			r.pm.PrintWarning("%v\n", f)
			r.audit.Log(audit.ActivityFile, audit.StatusFailure,
				fmt.Sprintf("%s (%s)", f.Error(), backuperr.KindOf(err)), audit.LevelError)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("restore interrupted after %d of %d files: %w", result.Restored, len(entries), err)
	}
	switch {
	case integrityFailures > 0:
		r.setState(result, StateIntegrityViolation)
		return fmt.Errorf("restore failed: %d entries failed verification, %d of %d restored: %w",
			integrityFailures, result.Restored, len(entries), backuperr.ErrIntegrity)
	case len(result.Failures) > 0:
		r.setState(result, StateIOError)
		return fmt.Errorf("restore failed: %d of %d entries could not be restored: %w",
			len(result.Failures), len(entries), backuperr.ErrIO)
	}
	return nil
}

// restoreEntry reads, decrypts, verifies and writes one entry.
func (r *run) restoreEntry(entry archive.Entry) error {
	data, err := entry.Read()
	if err != nil {
		return err
	}

	if r.opts.Key != nil {
		if data, err = aeskey.Decrypt(data, r.opts.Key); err != nil {
			return err
		}
	}

	if r.store != nil {
		if err := r.verify(entry.Name, data); err != nil {
			r.abort.Store(true)
			return err
		}
	}

	target, err := fs.SafeJoin(r.root, entry.Name)
	if err != nil {
		return backuperr.IO("restore", entry.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), constants.StandardDirPerms); err != nil {
		return backuperr.FromOS("create directory", filepath.Dir(target), err)
	}
	// #nosec G306 - restored files get standard permissions
	if err := os.WriteFile(target, data, constants.StandardFilePerms); err != nil {
		return backuperr.FromOS("write", entry.Name, err)
	}

	r.counters.Add(entry.Size)
	r.restored.Add(1)
	r.pm.PrintVerbose("Restored %s", entry.Name)
	return nil
}

func (r *run) verify(name string, plaintext []byte) error {
	expected, ok := r.store.Get(name)
	if !ok {
		return backuperr.Integrity(name, errors.New("no recorded hash"))
	}
	actual, err := chunk.HashBytes(plaintext, r.opts.HashAlgorithm)
	if err != nil {
		return backuperr.IO("hash", name, err)
	}
	if actual != expected {
		return backuperr.Integrity(name, fmt.Errorf("hash mismatch: expected %s, got %s", expected, actual))
	}
	return nil
}

func (r *run) loadManifest() *manifest.Store {
	path := r.opts.ManifestPath
	if path == "" {
		path = filepath.Join(r.opts.BackupDir, constants.ManifestFileName)
	}
	store, err := manifest.LoadStrict(path)
	if err != nil {
		r.pm.PrintWarning("hash manifest unusable, every entry will fail verification: %v\n", err)
		r.audit.Log(audit.ActivityRestore, audit.StatusFailure, "hash manifest unusable: "+err.Error(), audit.LevelWarn)
		return manifest.NewStore()
	}
	return store
}

func (r *run) setState(result *Result, s State) {
	result.State = s
	if r.opts.OnState != nil {
		r.opts.OnState(s)
	}
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
