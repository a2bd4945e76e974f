package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/keeply/backup-agent/internal/agentstate"
	"github.com/keeply/backup-agent/internal/blobstore"
	"github.com/keeply/backup-agent/internal/config"
	"github.com/keeply/backup-agent/internal/jobs"
	"github.com/keeply/backup-agent/internal/scanengine"
	"github.com/keeply/backup-agent/internal/store"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDataDir    string
	flagSecretKey  string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that handle config/store setup
// themselves. No command currently needs this, but the annotation key
// is kept for parity with how the rest of this command tree is wired.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles everything a subcommand needs: resolved config,
// logger, an opened Store, the shared Job Controller, and the agent
// state accessor. The blob store and scan engine are rooted at a
// per-invocation --dest directory, so scan/restore commands build
// those themselves via NewEngine.
type CLIContext struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Store   store.Store
	Jobs    *jobs.Controller
	State   *agentstate.Accessor
	closeFn func() error
}

// NewEngine opens (or creates) the blob store rooted at destDir and
// returns a scan engine bound to it and this context's Store.
func (c *CLIContext) NewEngine(destDir string) (*scanengine.Engine, error) {
	blobs, err := blobstore.New(destDir)
	if err != nil {
		return nil, fmt.Errorf("opening blob store at %s: %w", destDir, err)
	}

	return scanengine.New(c.Store, blobs, c.Logger, nil), nil
}

// Close releases the store opened for this invocation.
func (c *CLIContext) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}

	return nil
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. RunE handlers can rely on PersistentPreRunE having already
// populated it.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE should have set it")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "keeply-agent",
		Short:         "Local file backup agent",
		Long:          "Scans a directory tree, backs up changed file content, and restores it on demand.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return setupCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil {
				return cc.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the data directory")
	cmd.PersistentFlags().StringVar(&flagSecretKey, "password", "", "encryption secret for the local database")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newDeviceCmd())

	return cmd
}

// setupCLIContext resolves configuration, locks the data directory,
// opens the encrypted store, recovers stale scans, and creates the job
// controller and agent state accessor (spec §6.5 config keys, §4.8 Job
// Controller). The blob store and scan engine are not built here; see
// NewEngine. Stored on the command's context for subcommand RunE
// handlers.
func setupCLIContext(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath, DataDir: flagDataDir, SecretKey: flagSecretKey}

	cfg, err := config.Load(flagConfigPath, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)

	if cfg.SecretKey == "" {
		return fmt.Errorf("a --password (or secret_key in config, or KEEPLY_SECRET_KEY) is required")
	}

	lockCleanup, err := writePIDFile(filepath.Join(cfg.DataDir, "agent.pid"))
	if err != nil {
		return fmt.Errorf("acquiring data directory lock: %w", err)
	}

	st, err := store.Open(cmd.Context(), cfg.DataDir, cfg.DBName, cfg.SecretKey, cfg.Scan.DBPoolSize, finalLogger)
	if err != nil {
		lockCleanup()
		return fmt.Errorf("opening store: %w", err)
	}

	if _, err := jobs.RecoverOnBoot(cmd.Context(), st, jobs.DefaultStaleHistoryRunningAge, time.Now, finalLogger); err != nil {
		finalLogger.Error("recovering stale scans on boot failed", slog.String("error", err.Error()))
	}

	jc := jobs.New(jobs.Options{Logger: finalLogger})

	state := agentstate.New(st, cfg.DataDir, func() int64 { return time.Now().UnixNano() })

	cc := &CLIContext{
		Cfg: cfg, Logger: finalLogger, Store: st, Jobs: jc, State: state,
		closeFn: func() error {
			err := st.Close()
			lockCleanup()
			return err
		},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Pass nil for pre-config bootstrap. CLI flags always
// win over the config file's log level; they are mutually exclusive
// (enforced by Cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
