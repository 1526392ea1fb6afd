/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/metrics"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/restore"
	"github.com/substantialcattle5/stillsuit/internal/space"
	"github.com/substantialcattle5/stillsuit/internal/ui"
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore backup.zip into the restore directory",
	Long: `Restore entries of <backup_dir>/backup.zip into the restore directory.

With integrity checks enabled every entry is verified against hashes.json
before it is written. The first missing or mismatching hash stops the
restore: no further entries are started and the command fails.

Examples:
  stillsuit restore --dest ~/restored
  stillsuit restore --include .txt --archive /mnt/backups/backup.zip`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("backup-dir") {
			cfg.BackupDir, _ = flags.GetString("backup-dir")
		}
		if flags.Changed("dest") {
			cfg.RestoreDir, _ = flags.GetString("dest")
		}
		if flags.Changed("include") {
			cfg.Restore.Include, _ = flags.GetStringSlice("include")
		}
		if flags.Changed("exclude") {
			cfg.Restore.Exclude, _ = flags.GetStringSlice("exclude")
		}
		applyCommonFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		archivePath, _ := flags.GetString("archive")
		return runRestore(cmd, cfg, archivePath)
	},
}

func runRestore(cmd *cobra.Command, cfg *config.Config, archivePath string) error {
	if cfg.BackupDir == "" && archivePath == "" {
		return fmt.Errorf("no backup directory: set backup_dir in %s or pass --backup-dir", configPath(cmd))
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Dir(archivePath)
	}
	if cfg.RestoreDir == "" {
		return fmt.Errorf("no restore directory: set restore_dir in %s or pass --dest", configPath(cmd))
	}

	var key []byte
	if cfg.Encryption {
		password, err := ui.GetPassword(cmd, ui.PasswordRequest{})
		if err != nil {
			return err
		}
		key, err = aeskey.ForRestore(cfg.KDF, password, cfg.KeyFilePath(cfg.BackupDir))
		if err != nil {
			if errors.Is(err, backuperr.ErrCrypto) {
				return fmt.Errorf("wrong password or damaged key file: %w", err)
			}
			return err
		}
	}

	interval, err := cfg.Interval()
	if err != nil {
		return err
	}

	s, err := openSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	engine := &restore.Engine{
		Progress: s.progress,
		Audit:    s.audit,
		Space:    space.NewController(cfg.SpaceMarginPercent),
	}
	res, runErr := engine.Run(s.ctx, restore.Options{
		BackupDir:          cfg.BackupDir,
		ArchivePath:        archivePath,
		RestoreDir:         cfg.RestoreDir,
		Filter:             pattern.Filter{Include: cfg.Restore.Include, Exclude: cfg.Restore.Exclude},
		Key:                key,
		Integrity:          cfg.IntegrityCheck,
		HashAlgorithm:      cfg.HashAlgorithm,
		ManifestPath:       cfg.ManifestPath(cfg.BackupDir),
		Workers:            cfg.Workers,
		SpaceMarginPercent: cfg.SpaceMarginPercent,
		ProgressInterval:   interval,
		OnState: func(state restore.State) {
			s.progress.PrintVerbose("Restore state: %s\n", state)
		},
	})

	s.recordMetrics(cmd, metrics.Run{
		Operation: "restore",
		Files:     int64(res.Restored),
		Bytes:     res.Bytes,
		Failures:  int64(len(res.Failures)),
		Duration:  res.Elapsed,
		Success:   runErr == nil,
	})

	// A failed restore that got past admission still has a summary worth showing
	if !s.quiet && (runErr == nil || res.Selected > 0) {
		ui.PrintRestoreSummary(cmd.OutOrStdout(), res)
	}
	if runErr != nil {
		return fmt.Errorf("restore failed: %w", runErr)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringP("backup-dir", "b", "", "Directory holding backup.zip and hashes.json")
	restoreCmd.Flags().StringP("dest", "d", "", "Directory to restore into")
	restoreCmd.Flags().String("archive", "", "Archive to restore (default <backup-dir>/backup.zip)")
	restoreCmd.Flags().StringSlice("include", nil, "Include pattern (repeatable)")
	restoreCmd.Flags().StringSlice("exclude", nil, "Exclude pattern (repeatable)")
	addCommonFlags(restoreCmd)
	addPasswordFlags(restoreCmd)
}
