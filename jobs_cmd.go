package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/store"
)

// newJobsCmd exposes the Job Controller's notion of scan/restore
// invocations (spec §4.8) from the CLI. A single invocation's
// in-memory Controller starts empty, so list/show/cancel operate
// against the persisted scan rows instead — the Controller state that
// matters for a CLI user is what already landed in the database.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage scan jobs recorded in the database",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())
	cmd.AddCommand(newJobsCancelCmd())

	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent scan/restore jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			rows, err := cc.Store.ListBackupHistory(cmd.Context(), flagHistoryLimit)
			if err != nil {
				return fmt.Errorf("listing jobs: %w", err)
			}

			printHistory(cmd, rows)

			return nil
		},
	}
}

func newJobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <scan-id>",
		Short: "Show one scan job's status and summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			scanID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scan id %q: %w", args[0], err)
			}

			scan, err := cc.Store.GetScan(cmd.Context(), scanID)
			if err != nil {
				return fmt.Errorf("fetching scan %d: %w", scanID, err)
			}

			if scan == nil {
				return fmt.Errorf("scan %d not found", scanID)
			}

			summary, err := cc.Store.GetScanSummary(cmd.Context(), scanID)
			if err != nil {
				return fmt.Errorf("fetching scan summary %d: %w", scanID, err)
			}

			printJobShow(cmd, scan, summary)

			return nil
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <scan-id>",
		Short: "Mark a running scan job as cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			scanID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scan id %q: %w", args[0], err)
			}

			scan, err := cc.Store.GetScan(cmd.Context(), scanID)
			if err != nil {
				return fmt.Errorf("fetching scan %d: %w", scanID, err)
			}

			if scan == nil {
				return fmt.Errorf("scan %d not found", scanID)
			}

			if scan.Status != store.ScanRunning {
				return fmt.Errorf("scan %d is not running (status %s)", scanID, scan.Status)
			}

			msg := "cancelled via jobs cancel"
			if err := cc.Store.FinishScan(cmd.Context(), scanID, store.ScanCancelled, time.Now().UnixNano(), &msg); err != nil {
				return fmt.Errorf("cancelling scan %d: %w", scanID, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scan %d cancelled\n", scanID)

			return nil
		},
	}
}

func printJobShow(cmd *cobra.Command, scan *store.Scan, summary *store.ScanSummary) {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Scan    *store.Scan        `json:"scan"`
			Summary *store.ScanSummary `json:"summary"`
		}{scan, summary})

		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scan %d: %s (root=%s)\n", scan.ID, colorizeStatus(scan.Status), scan.RootPath)

	if summary != nil {
		fmt.Fprintf(cmd.OutOrStdout(),
			"  files: %d total, %d new, %d modified, %d moved, %d unchanged, %d deleted\n",
			summary.FilesTotal, summary.NewCount, summary.ModifiedCount,
			summary.MovedCount, summary.UnchangedCount, summary.DeletedCount,
		)
	}

	if scan.ErrorMessage != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", *scan.ErrorMessage)
	}
}
