package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/blobstore"
	"github.com/keeply/backup-agent/internal/jobs"
	"github.com/keeply/backup-agent/internal/scanengine"
)

var (
	flagRestoreScanID       int64
	flagRestoreMode         string
	flagRestoreOriginalRoot string
	flagRestoreDestDir      string
	flagRestoreBlobDir      string
)

// newRestoreCmd reproduces a prior scan's manifest back onto disk
// (spec §4.7 restoreChangedFilesFromScan), either to the original
// paths or into a mirrored directory.
func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore files from a prior scan",
		RunE:  runRestoreCmd,
	}

	cmd.Flags().Int64Var(&flagRestoreScanID, "scan-id", 0, "scan id to restore (required)")
	cmd.Flags().StringVar(&flagRestoreBlobDir, "blob-dir", "", "destination volume the scan's blob store lives under (required)")
	cmd.Flags().StringVar(&flagRestoreMode, "mode", "original", "restore mode: original or dest")
	cmd.Flags().StringVar(&flagRestoreOriginalRoot, "original-root", "", "root to restore into for --mode=original")
	cmd.Flags().StringVar(&flagRestoreDestDir, "dest", "", "directory to restore into for --mode=dest")
	cmd.MarkFlagRequired("scan-id")
	cmd.MarkFlagRequired("blob-dir")

	return cmd
}

func runRestoreCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	mode, err := resolveRestoreMode(flagRestoreMode)
	if err != nil {
		return err
	}

	if mode == blobstore.ModeOriginalPath && flagRestoreOriginalRoot == "" {
		return fmt.Errorf("--original-root is required for --mode=original")
	}

	if mode == blobstore.ModeDestWithStructure && flagRestoreDestDir == "" {
		return fmt.Errorf("--dest is required for --mode=dest")
	}

	engine, err := cc.NewEngine(flagRestoreBlobDir)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	restoreOpts := scanengine.RestoreOptions{
		ScanID: flagRestoreScanID, Mode: mode,
		OriginalRoot: flagRestoreOriginalRoot, DestinationDir: flagRestoreDestDir,
	}

	var report *scanengine.RestoreReport

	job, err := cc.Jobs.Submit(jobs.KindRestore, flagRestoreBlobDir, restoreTargetDir(mode), func(taskCtx context.Context, heartbeat func()) error {
		heartbeat()

		r, runErr := engine.RunRestore(taskCtx, restoreOpts)
		report = r

		return runErr
	})
	if err != nil {
		return fmt.Errorf("submitting restore: %w", err)
	}

	waitForJob(ctx, cc.Jobs, job.ID)

	if report == nil {
		return fmt.Errorf("restore did not complete")
	}

	printRestoreReport(cmd, report)

	if report.Errors > 0 {
		return fmt.Errorf("restore completed with %d errors", report.Errors)
	}

	return nil
}

func resolveRestoreMode(flag string) (string, error) {
	switch flag {
	case "original":
		return blobstore.ModeOriginalPath, nil
	case "dest":
		return blobstore.ModeDestWithStructure, nil
	default:
		return "", fmt.Errorf("invalid --mode %q: must be original or dest", flag)
	}
}

func restoreTargetDir(mode string) string {
	if mode == blobstore.ModeOriginalPath {
		return flagRestoreOriginalRoot
	}

	return flagRestoreDestDir
}
