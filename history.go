package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/store"
)

var flagHistoryLimit int

// newHistoryCmd lists recent backup_history rows (spec §3
// "BackupHistoryRow"), the same data the external HTTP history
// endpoint would serve. ListBackupHistory itself clamps the limit to
// [1, MaxBackupHistoryLimit], so a user-supplied --limit can't force an
// unbounded table scan.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scan and restore invocations",
		RunE:  runHistoryCmd,
	}

	cmd.Flags().IntVar(&flagHistoryLimit, "limit", store.DefaultBackupHistoryLimit, "maximum rows to return (hard capped at 200)")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	rows, err := cc.Store.ListBackupHistory(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("listing backup history: %w", err)
	}

	printHistory(cmd, rows)

	return nil
}
