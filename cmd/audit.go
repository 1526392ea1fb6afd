package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/substantialcattle5/stillsuit/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	Long: `List audit log records, optionally filtered by date, activity and status.

Dates are YYYY-MM-DD or RFC 3339 timestamps; a bare --to date includes the
whole day.

Examples:
  stillsuit audit --activity backup --status failure
  stillsuit audit --from 2025-01-01 --to 2025-01-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.Logging.File
		}

		q, err := auditQueryFromFlags(cmd)
		if err != nil {
			return err
		}

		records, err := audit.Search(path, q)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching records.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tLEVEL\tACTIVITY\tSTATUS\tDETAILS")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.Timestamp.Local().Format(time.RFC3339), rec.Level, rec.ActivityType, rec.Status, rec.Details)
		}
		return w.Flush()
	},
}

func auditQueryFromFlags(cmd *cobra.Command) (audit.Query, error) {
	var q audit.Query
	flags := cmd.Flags()

	from, _ := flags.GetString("from")
	if from != "" {
		t, _, err := parseAuditTime(from)
		if err != nil {
			return q, fmt.Errorf("invalid --from: %w", err)
		}
		q.From = t
	}

	to, _ := flags.GetString("to")
	if to != "" {
		t, dateOnly, err := parseAuditTime(to)
		if err != nil {
			return q, fmt.Errorf("invalid --to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		q.To = t
	}

	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("--to is before --from")
	}

	q.ActivityType, _ = flags.GetString("activity")
	q.Status, _ = flags.GetString("status")
	q.ActivityType = strings.ToLower(q.ActivityType)
	q.Status = strings.ToLower(q.Status)
	return q, nil
}

// parseAuditTime accepts RFC 3339 or a local YYYY-MM-DD date
func parseAuditTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return t, true, nil
}

func init() {
	auditCmd.Flags().String("file", "", "Audit log to read (default logging.file)")
	auditCmd.Flags().String("from", "", "Earliest record (inclusive)")
	auditCmd.Flags().String("to", "", "Latest record (inclusive)")
	auditCmd.Flags().String("activity", "", "Activity type (backup, restore, recover, file)")
	auditCmd.Flags().String("status", "", "Status (started, success, failure)")
	rootCmd.AddCommand(auditCmd)
}
