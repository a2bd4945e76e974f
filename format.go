package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/jobs"
	"github.com/keeply/backup-agent/internal/scanengine"
	"github.com/keeply/backup-agent/internal/store"
)

// stdoutIsTerminal reports whether stdout is an interactive terminal.
// Piped or redirected output (CI logs, `| less`) gets plain status
// text instead of ANSI color codes.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// colorizeStatus wraps s in green/red ANSI codes for OK/SUCCESS vs
// ERROR/FAILED statuses, only when stdout is a terminal.
func colorizeStatus(s string) string {
	if !stdoutIsTerminal() {
		return s
	}

	switch s {
	case store.ScanSuccess, store.BackupStatusOK:
		return ansiGreen + s + ansiReset
	case store.ScanFailed, store.BackupStatusError:
		return ansiRed + s + ansiReset
	default:
		return s
	}
}

// jobPollInterval bounds how quickly waitForJob notices a state
// transition. State changes are not throttled the way heartbeats are
// (jobs.DefaultHeartbeatInterval), so this polls well below that
// interval.
const jobPollInterval = 200 * time.Millisecond

// waitForJob blocks until jobID reaches a terminal state, cancelling
// the job if ctx is done first (Ctrl+C during a synchronous scan or
// restore invocation).
func waitForJob(ctx context.Context, jc *jobs.Controller, jobID string) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			jc.Cancel(jobID)
		case <-ticker.C:
			job, ok := jc.Get(jobID)
			if !ok {
				return
			}

			switch job.Snapshot().State {
			case jobs.StateSuccess, jobs.StateFailed, jobs.StateCancelled:
				return
			}
		}
	}
}

// printScanReport writes a scan's result either as JSON (--json) or as
// a short human-readable summary.
func printScanReport(cmd *cobra.Command, report *scanengine.Report) {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)

		return
	}

	s := report.Summary
	fmt.Fprintf(cmd.OutOrStdout(), "scan %d: %s\n", report.ScanID, colorizeStatus(report.Status))
	fmt.Fprintf(cmd.OutOrStdout(),
		"  files: %d total, %d new, %d modified, %d moved, %d unchanged, %d deleted\n",
		s.FilesTotal, s.NewCount, s.ModifiedCount, s.MovedCount, s.UnchangedCount, s.DeletedCount,
	)

	if s.WalkErrors > 0 || s.HashErrors > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  errors: %d walk, %d hash\n", s.WalkErrors, s.HashErrors)
	}
}

// printRestoreReport mirrors printScanReport for restore invocations.
func printRestoreReport(cmd *cobra.Command, report *scanengine.RestoreReport) {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)

		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "restore of scan %d: %d restored, %d errors\n",
		report.ScanID, report.FilesRestored, report.Errors)
}

// printHistory renders recent backup_history rows as a table (default)
// or as JSON (--json).
func printHistory(cmd *cobra.Command, rows []store.BackupHistoryRow) {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)

		return
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tROOT\tDEST\tFILES\tERRORS\tSTARTED")

	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.BackupType, colorizeStatus(r.Status), r.RootPath, r.DestPath,
			r.FilesProcessed, r.Errors, time.Unix(0, r.StartedAt).Format(time.RFC3339))
	}

	tw.Flush()
}
