package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/substantialcattle5/stillsuit/internal/backup"
	"github.com/substantialcattle5/stillsuit/internal/backuperr"
	"github.com/substantialcattle5/stillsuit/internal/restore"
	"github.com/substantialcattle5/stillsuit/util"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	labelColor   = color.New(color.FgCyan)
)

// maxListedFailures caps the failures printed in a summary
const maxListedFailures = 10

// Warn prints a yellow warning line
func Warn(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprintf(w, "Warning: "+format, args...)
}

// PrintBackupSummary prints the outcome of a backup run
func PrintBackupSummary(w io.Writer, res *backup.Result) {
	separator := strings.Repeat("─", 50)
	fmt.Fprintln(w, separator)

	switch res.Status {
	case backup.StatusCompleted:
		successColor.Fprintln(w, "✅ Backup completed")
	case backup.StatusPartial:
		warnColor.Fprintln(w, "⚠️  Backup completed with failures")
	default:
		failureColor.Fprintln(w, "❌ Backup failed")
	}

	row(w, "Archive", res.Archive)
	if res.ManifestPath != "" {
		row(w, "Manifest", res.ManifestPath)
	}
	row(w, "Files", fmt.Sprintf("%d of %d", res.Files, res.Selected))
	row(w, "Size", util.HumanReadableSize(res.Bytes))
	row(w, "Chunks", fmt.Sprintf("%d", res.Chunks))
	row(w, "Elapsed", res.Elapsed.Round(time.Millisecond).String())
	printFailures(w, res.Failures)
	fmt.Fprintln(w, separator)
}

// PrintRestoreSummary prints the outcome of a restore run
func PrintRestoreSummary(w io.Writer, res *restore.Result) {
	separator := strings.Repeat("─", 50)
	fmt.Fprintln(w, separator)

	switch {
	case res.State == restore.StateCompleted:
		successColor.Fprintln(w, "✅ Restore completed")
	case res.State == restore.StateIntegrityViolation:
		failureColor.Fprintln(w, "❌ Restore failed: integrity violation")
	default:
		failureColor.Fprintln(w, "❌ Restore failed")
	}

	row(w, "Destination", res.RestoreDir)
	row(w, "Files", fmt.Sprintf("%d of %d", res.Restored, res.Selected))
	row(w, "Size", util.HumanReadableSize(res.Bytes))
	row(w, "Elapsed", res.Elapsed.Round(time.Millisecond).String())
	if res.Aborted {
		warnColor.Fprintln(w, "  Remaining entries were not restored after the integrity violation.")
	}
	printFailures(w, res.Failures)
	fmt.Fprintln(w, separator)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  • %s %s\n", labelColor.Sprintf("%-12s", label+":"), value)
}

func printFailures(w io.Writer, failures []backuperr.FileFailure) {
	if len(failures) == 0 {
		return
	}
	failureColor.Fprintf(w, "  %d failures:\n", len(failures))
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(w, "    … and %d more\n", len(failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(w, "    - %s [%s]\n", f.Error(), backuperr.KindOf(f.Err))
	}
}
