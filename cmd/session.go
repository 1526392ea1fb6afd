package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/audit"
	"github.com/substantialcattle5/stillsuit/internal/config"
	"github.com/substantialcattle5/stillsuit/internal/metrics"
	"github.com/substantialcattle5/stillsuit/internal/progress"
	"github.com/substantialcattle5/stillsuit/internal/ui"
)

// session bundles what every operation needs: configuration, output and the audit log
type session struct {
	cfg      *config.Config
	progress *progress.Manager
	audit    *audit.Logger
	ctx      context.Context
	quiet    bool
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		return config.DefaultPath()
	}
	return path
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath(cmd))
}

// openSession wires progress output, cancellation and the audit log for cfg.
// The caller must close the session.
func openSession(cmd *cobra.Command, cfg *config.Config) (*session, error) {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

	logger, err := audit.Open(cfg.Logging.File, cfg.Logging.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	pm := progress.NewManager(progress.Options{
		Quiet:   quiet,
		Verbose: verbose,
		Out:     cmd.OutOrStdout(),
	})
	ctx := pm.SetupCancellation(cmd.Context())

	return &session{cfg: cfg, progress: pm, audit: logger, ctx: ctx, quiet: quiet}, nil
}

func (s *session) close() {
	s.progress.Cleanup()
	// #nosec G104 - audit records are already flushed per write
	_ = s.audit.Close()
}

// recordMetrics writes the metrics textfile when one is configured. Failures only warn.
func (s *session) recordMetrics(cmd *cobra.Command, run metrics.Run) {
	if s.cfg.MetricsFile == "" {
		return
	}
	run.Finished = time.Now()
	if err := metrics.WriteTextfile(s.cfg.MetricsFile, run); err != nil {
		ui.Warn(cmd.ErrOrStderr(), "could not write metrics: %v\n", err)
	}
}
