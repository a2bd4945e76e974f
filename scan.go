package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/jobs"
	"github.com/keeply/backup-agent/internal/scanengine"
	"github.com/keeply/backup-agent/internal/store"
)

var (
	flagScanRoot string
	flagScanDest string
)

// newScanCmd implements the literal CLI contract of spec §6.1:
// `scan --root <path> --dest <path> [--password <opt>]`. It runs the
// scan synchronously through the shared Job Controller and exits 0 on
// success, non-zero on failure.
func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a directory tree and back up changed files",
		RunE:  runScanCmd,
	}

	cmd.Flags().StringVar(&flagScanRoot, "root", "", "directory tree to scan (required)")
	cmd.Flags().StringVar(&flagScanDest, "dest", "", "destination volume for the blob store (required)")
	cmd.MarkFlagRequired("root")
	cmd.MarkFlagRequired("dest")

	return cmd
}

func runScanCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	engine, err := cc.NewEngine(flagScanDest)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	opts := scanengine.Options{
		Workers: cc.Cfg.Scan.Workers, BatchLimit: cc.Cfg.Scan.BatchLimit,
		IssueCapacity: cc.Cfg.Scan.QueueCapacity, QueueCapacity: cc.Cfg.Scan.QueueCapacity,
		PoolSize: cc.Cfg.Scan.DBPoolSize, PreloadIndexMaxRows: cc.Cfg.Scan.PreloadIndexMaxRows,
		LRUCacheSize: cc.Cfg.Scan.LRUCacheSize, HashMaxBytes: cc.Cfg.Scan.HashMaxBytes,
		HashingEnabled: cc.Cfg.Scan.HashingEnabled, ExcludeGlobs: cc.Cfg.Scan.ExcludeGlobs,
		FollowSymlinks: cc.Cfg.Scan.FollowSymlinks,
	}

	var report *scanengine.Report

	job, err := cc.Jobs.Submit(jobs.KindScan, flagScanRoot, flagScanDest, func(taskCtx context.Context, heartbeat func()) error {
		heartbeat()

		r, runErr := engine.RunScan(taskCtx, flagScanRoot, flagScanDest, opts)
		report = r

		return runErr
	})
	if err != nil {
		return fmt.Errorf("submitting scan: %w", err)
	}

	waitForJob(ctx, cc.Jobs, job.ID)

	if report == nil {
		return fmt.Errorf("scan did not complete")
	}

	printScanReport(cmd, report)

	if report.Status != store.ScanSuccess {
		return fmt.Errorf("scan finished with status %s", report.Status)
	}

	return nil
}
