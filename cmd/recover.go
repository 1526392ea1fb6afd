package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/archive"
	"github.com/substantialcattle5/stillsuit/internal/audit"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/manifest"
	"github.com/substantialcattle5/stillsuit/internal/metrics"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Merge or discard temporary archives left by an interrupted backup",
	Long: `Recover the temporary chunk archives (temp_*.zip) an interrupted backup left
in the backup directory.

By default they are merged into backup.zip and, when integrity checks are
enabled, hashes.json is rebuilt from the digests stored with each entry.
With --discard they are deleted instead.

A temporary archive holds only the entries written before the interruption,
so the recovered backup.zip is partial. If a backup.zip already exists the
command refuses to replace it unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dest") {
			cfg.BackupDir, _ = cmd.Flags().GetString("dest")
		}
		discard, _ := cmd.Flags().GetBool("discard")
		force, _ := cmd.Flags().GetBool("force")
		return runRecover(cmd, cfg, recoverOptions{discard: discard, force: force})
	},
}

type recoverOptions struct {
	discard bool
	// force lets a merge replace an existing backup.zip
	force bool
}

func runRecover(cmd *cobra.Command, cfg *config.Config, ro recoverOptions) error {
	if cfg.BackupDir == "" {
		return fmt.Errorf("no backup directory: set backup_dir in %s or pass --dest", configPath(cmd))
	}

	temps, err := archive.FindTemporary(cfg.BackupDir)
	if err != nil {
		return err
	}
	if len(temps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to recover.")
		return nil
	}

	finalPath := filepath.Join(cfg.BackupDir, constants.FinalArchiveName)
	if !ro.discard && !ro.force {
		if _, err := os.Stat(finalPath); err == nil {
			return fmt.Errorf("%s already exists and would be replaced by a partial archive of the interrupted run; "+
				"use --force to replace it or --discard to delete the temporary archives", finalPath)
		} else if !os.IsNotExist(err) {
			return backuperr.FromOS("recover", finalPath, err)
		}
	}

	s, err := openSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if ro.discard {
		removed, err := archive.RemoveStale(cfg.BackupDir, constants.FinalArchiveName)
		if err != nil {
			s.audit.Log(audit.ActivityRecover, audit.StatusFailure, err.Error(), audit.LevelError)
			return err
		}
		for _, p := range removed {
			s.progress.PrintVerbose("Removed %s\n", p)
		}
		s.audit.Log(audit.ActivityRecover, audit.StatusSuccess,
			fmt.Sprintf("discarded %d temporary archives in %s", len(removed), cfg.BackupDir), audit.LevelInfo)
		fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d temporary archives.\n", len(removed))
		return nil
	}

	start := time.Now()
	s.audit.Log(audit.ActivityRecover, audit.StatusStarted,
		fmt.Sprintf("merging %d temporary archives in %s", len(temps), cfg.BackupDir), audit.LevelInfo)

	opts := archive.MergeOptions{Limit: cfg.Workers}
	if cfg.IntegrityCheck {
		opts.Manifest = manifest.NewStore()
		opts.ManifestPath = cfg.ManifestPath(cfg.BackupDir)
		opts.RebuildManifest = true
	}

	merger := &archive.Merger{Progress: s.progress}
	res, err := merger.Merge(s.ctx, finalPath, temps, opts)

	run := metrics.Run{Operation: "recover", Duration: time.Since(start), Success: err == nil}
	if res != nil {
		run.Files = int64(res.Entries)
		run.Failures = int64(len(res.Failures))
		run.Success = err == nil && len(res.Failures) == 0
	}
	s.recordMetrics(cmd, run)

	if err != nil {
		s.audit.Log(audit.ActivityRecover, audit.StatusFailure, err.Error(), audit.LevelError)
		return fmt.Errorf("recovery failed: %w", err)
	}

	for _, f := range res.Failures {
		s.audit.Log(audit.ActivityFile, audit.StatusFailure, f.Error(), audit.LevelWarn)
		s.progress.PrintWarning("%v\n", f)
	}
	s.audit.Log(audit.ActivityRecover, audit.StatusSuccess,
		fmt.Sprintf("partial archive: %d entries from %d temporary archives merged into %s", res.Entries, len(res.Merged), res.Archive), audit.LevelInfo)

	fmt.Fprintf(cmd.OutOrStdout(), "Recovered a partial backup: %s holds only the files written before the interruption.\n", res.Archive)
	fmt.Fprintf(cmd.OutOrStdout(), "Recovery complete. Merged=%d Entries=%d Failed=%d\n", len(res.Merged), res.Entries, len(res.Failures))
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d temporary archives could not be merged and were kept", len(res.Failures))
	}
	return nil
}

func init() {
	recoverCmd.Flags().StringP("dest", "d", "", "Backup directory holding the temporary archives")
	recoverCmd.Flags().Bool("discard", false, "Delete the temporary archives instead of merging them")
	recoverCmd.Flags().Bool("force", false, "Replace an existing backup.zip with the recovered partial archive")
	rootCmd.AddCommand(recoverCmd)
}
