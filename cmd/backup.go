/*
Copyright © 2025 SubstantialCattle5, nilaysharan.com
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/backup"
	"github.com/substantialcattle5/stillsuit/internal/bandwidth"
	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/constants"
	"github.com/substantialcattle5/stillsuit/internal/encryption/aeskey"
	"github.com/substantialcattle5/stillsuit/internal/metrics"
	"github.com/substantialcattle5/stillsuit/internal/pattern"
	"github.com/substantialcattle5/stillsuit/internal/space"
	"github.com/substantialcattle5/stillsuit/internal/ui"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the source directory into backup.zip",
	Long: `Back up the source directory into <backup_dir>/backup.zip.

Files selected by the include/exclude patterns are split into chunks that are
archived in parallel and merged into the final archive. With integrity checks
enabled, a hash of every file is written to hashes.json next to the archive.

Patterns: "all", "none", an extension (".txt"), a stem ("report."), a bare
file name, or a regular expression over the relative path.

Examples:
  stillsuit backup --source ~/documents --dest /mnt/backups
  stillsuit backup --include .txt --include .md --exclude secret.
  echo "$PASSWORD" | stillsuit backup --password-stdin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyBackupFlags(cmd, cfg); err != nil {
			return err
		}
		return runBackup(cmd, cfg)
	},
}

// applyBackupFlags overrides configuration values with the flags that were set
func applyBackupFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.SourceDir, _ = flags.GetString("source")
	}
	if flags.Changed("dest") {
		cfg.BackupDir, _ = flags.GetString("dest")
	}
	if flags.Changed("include") {
		cfg.Backup.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		cfg.Backup.Exclude, _ = flags.GetStringSlice("exclude")
	}
	applyCommonFlags(cmd, cfg)
	if flags.Changed("no-compress") {
		noCompress, _ := flags.GetBool("no-compress")
		cfg.Compression = !noCompress
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("read-limit") {
		cfg.ReadLimit, _ = flags.GetString("read-limit")
	}
	return cfg.Validate()
}

// applyCommonFlags handles the flags shared by backup and restore
func applyCommonFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("no-encrypt") {
		noEncrypt, _ := flags.GetBool("no-encrypt")
		cfg.Encryption = !noEncrypt
	}
	if flags.Changed("no-integrity") {
		noIntegrity, _ := flags.GetBool("no-integrity")
		cfg.IntegrityCheck = !noIntegrity
	}
	if flags.Changed("hash") {
		cfg.HashAlgorithm, _ = flags.GetString("hash")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
}

func runBackup(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.SourceDir == "" {
		return fmt.Errorf("no source directory: set source_dir in %s or pass --source", configPath(cmd))
	}
	if cfg.BackupDir == "" {
		return fmt.Errorf("no backup directory: set backup_dir in %s or pass --dest", configPath(cmd))
	}

	var key []byte
	if cfg.Encryption {
		password, err := ui.GetPassword(cmd, ui.PasswordRequest{Confirm: true, Assess: true})
		if err != nil {
			return err
		}
		key, err = aeskey.ForBackup(cfg.KDF, password, cfg.KeyFilePath(cfg.BackupDir))
		if err != nil {
			return fmt.Errorf("failed to prepare encryption key: %w", err)
		}
	}

	limiter, err := bandwidth.NewLimiter(cfg.ReadLimit)
	if err != nil {
		return err
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

	s.progress.PrintVerbose("Backing up %s into %s\n", cfg.SourceDir, filepath.Join(cfg.BackupDir, constants.FinalArchiveName))
	if limiter != nil {
		s.progress.PrintVerbose("Read limit: %s\n", limiter.Limit())
	}

	engine := &backup.Engine{
		Progress: s.progress,
		Audit:    s.audit,
		Space:    space.NewController(cfg.SpaceMarginPercent),
	}
	res, runErr := engine.Run(s.ctx, backup.Options{
		SourceDir:          cfg.SourceDir,
		BackupDir:          cfg.BackupDir,
		Filter:             pattern.Filter{Include: cfg.Backup.Include, Exclude: cfg.Backup.Exclude},
		Compress:           cfg.Compression,
		Key:                key,
		Integrity:          cfg.IntegrityCheck,
		HashAlgorithm:      cfg.HashAlgorithm,
		ManifestPath:       cfg.ManifestPath(cfg.BackupDir),
		ChunkSize:          cfg.ChunkSize,
		Workers:            cfg.Workers,
		SpaceMarginPercent: cfg.SpaceMarginPercent,
		Limiter:            limiter,
		ProgressInterval:   interval,
	})

	s.recordMetrics(cmd, metrics.Run{
		Operation: "backup",
		Files:     int64(res.Files),
		Bytes:     res.Bytes,
		Failures:  int64(len(res.Failures)),
		Duration:  res.Elapsed,
		Success:   runErr == nil && res.Status == backup.StatusCompleted,
	})

	if runErr != nil {
		return fmt.Errorf("backup failed: %w", runErr)
	}
	if !s.quiet {
		ui.PrintBackupSummary(cmd.OutOrStdout(), res)
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d of %d files could not be backed up", len(res.Failures), res.Selected)
	}
	return nil
}

func addPasswordFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("password-stdin", false, "Read the password from standard input")
	cmd.Flags().String("password-file", "", "Read the password from a file (0600 recommended)")
	cmd.Flags().Bool("interactive", false, "Prompt for the password with a masked prompt")
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-encrypt", false, "Disable AES-256 encryption of entries")
	cmd.Flags().Bool("no-integrity", false, "Skip the integrity manifest")
	cmd.Flags().String("hash", "", "Hash algorithm (sha256, sha512, sha1, md5, blake3)")
	cmd.Flags().Int("workers", 0, "Number of concurrent tasks (0 for no limit)")
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringP("source", "s", "", "Directory to back up")
	backupCmd.Flags().StringP("dest", "d", "", "Directory receiving backup.zip")
	backupCmd.Flags().StringSlice("include", nil, "Include pattern (repeatable)")
	backupCmd.Flags().StringSlice("exclude", nil, "Exclude pattern (repeatable)")
	backupCmd.Flags().Bool("no-compress", false, "Store entries without deflate")
	backupCmd.Flags().Int("chunk-size", 0, "Files per chunk")
	backupCmd.Flags().String("read-limit", "", "Cap source read throughput (e.g. 50MB)")
	addCommonFlags(backupCmd)
	addPasswordFlags(backupCmd)
}
