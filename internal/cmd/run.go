package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/harrison/lf/internal/classify"
	"github.com/harrison/lf/internal/config"
	"github.com/harrison/lf/internal/display"
	"github.com/harrison/lf/internal/executor"
	"github.com/harrison/lf/internal/filelock"
	"github.com/harrison/lf/internal/fileutil"
	"github.com/harrison/lf/internal/history"
	"github.com/harrison/lf/internal/logger"
	"github.com/harrison/lf/internal/models"
	"github.com/harrison/lf/internal/report"
	"github.com/harrison/lf/internal/rewriter"
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("workers", "j", 0, "Number of parallel workers (0 = one per CPU)")
	cmd.Flags().Int("queue-size", config.DefaultConfig().QueueSize, "Maximum number of discovered files waiting for a worker")
	cmd.Flags().String("config", "", "Path to config file (default: PATH/.lf.yaml)")
	cmd.Flags().BoolP("dry-run", "n", false, "Report what would change without writing any file")
	cmd.Flags().Bool("gitignore", false, "Skip paths matched by the root .gitignore")
	cmd.Flags().StringArray("exclude", nil, "Directory name to skip (repeatable)")
	cmd.Flags().StringArray("ext", nil, "Only convert files with this extension (repeatable)")
	cmd.Flags().String("max-size", "", "Skip files larger than this size (e.g. 512KB, 10MiB; 0 = unlimited)")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Directory for run log files")
	cmd.Flags().BoolP("verbose", "v", false, "Log every file (same as --log-level debug)")
	cmd.Flags().BoolP("quiet", "q", false, "Only print warnings, errors and failures")
	cmd.Flags().String("report", "", "Write a run report to FILE (.md or .html)")
	cmd.Flags().Bool("history", false, "Record this run in the history database")
	cmd.Flags().Bool("no-lock", false, "Do not take the per-directory run lock")
	cmd.Flags().BoolP("watch", "w", false, "After the run, keep normalizing files as they change")
}

// runOptions holds the flags that affect the run but not the configuration.
type runOptions struct {
	quiet        bool
	consoleLevel string // Console log level when it differs from the configured one
	reportPath   string
	watch        bool
}

// overridesFromFlags builds config overrides from the flags the user set.
func overridesFromFlags(cmd *cobra.Command) (config.Overrides, runOptions, error) {
	var o config.Overrides
	var opts runOptions
	flags := cmd.Flags()

	verbose, _ := flags.GetBool("verbose")
	opts.quiet, _ = flags.GetBool("quiet")
	if verbose && opts.quiet {
		return o, opts, usageError("cannot use --verbose and --quiet together")
	}
	opts.reportPath, _ = flags.GetString("report")
	opts.watch, _ = flags.GetBool("watch")

	if flags.Changed("workers") {
		workers, _ := flags.GetInt("workers")
		o.Workers = &workers
	}
	if flags.Changed("queue-size") {
		queueSize, _ := flags.GetInt("queue-size")
		o.QueueSize = &queueSize
	}
	if flags.Changed("max-size") {
		raw, _ := flags.GetString("max-size")
		size, err := parseSize(raw)
		if err != nil {
			return o, opts, usageError("invalid --max-size %q: %v", raw, err)
		}
		o.MaxFileSize = &size
	}
	if flags.Changed("dry-run") {
		dryRun, _ := flags.GetBool("dry-run")
		o.DryRun = &dryRun
	}
	if flags.Changed("gitignore") {
		gitignore, _ := flags.GetBool("gitignore")
		o.Gitignore = &gitignore
	}
	o.ExcludeDirs, _ = flags.GetStringArray("exclude")
	o.Extensions, _ = flags.GetStringArray("ext")

	// An explicit --log-level wins over -v; -q only quiets the console
	switch {
	case flags.Changed("log-level"):
		level, _ := flags.GetString("log-level")
		o.LogLevel = &level
		opts.consoleLevel = level
	case verbose:
		level := "debug"
		o.LogLevel = &level
	case opts.quiet:
		opts.consoleLevel = "warn"
	}

	if flags.Changed("log-dir") {
		logDir, _ := flags.GetString("log-dir")
		o.LogDir = &logDir
	}
	if flags.Changed("no-lock") {
		noLock, _ := flags.GetBool("no-lock")
		lock := !noLock
		o.Lock = &lock
	}
	if flags.Changed("history") {
		enabled, _ := flags.GetBool("history")
		o.History = &enabled
	}

	return o, opts, nil
}

// parseSize accepts a plain byte count or a humanized size such as "10MB".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size too large")
	}
	return int64(n), nil
}

// loadRunConfig loads the config file for root (or --config) and applies flag overrides.
func loadRunConfig(cmd *cobra.Command, root string, o config.Overrides) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr != nil {
			return nil, usageError("config file %s: %v", configPath, statErr)
		}
		cfg, err = config.LoadConfig(configPath)
	} else {
		dir := root
		if info, statErr := os.Stat(root); statErr == nil && !info.IsDir() {
			dir = filepath.Dir(root)
		}
		cfg, err = config.LoadConfigFromDir(dir)
	}
	if err != nil {
		return nil, usageError("failed to load config: %v", err)
	}

	cfg.MergeWithFlags(o)
	if err := cfg.Validate(); err != nil {
		return nil, usageError("invalid configuration: %v", err)
	}
	return cfg, nil
}

// runNormalize executes a normalization run over the PATH argument
func runNormalize(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	overrides, opts, err := overridesFromFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadRunConfig(cmd, root, overrides)
	if err != nil {
		return err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return usageError("resolve %s: %v", root, err)
	}
	if opts.watch {
		if info, err := os.Stat(absRoot); err == nil && !info.IsDir() {
			return usageError("--watch requires a directory, %s is a file", root)
		}
	}

	runID := history.NewRunID()
	startedAt := time.Now()

	progress := logger.NewProgress(errOut)
	consoleLevel := cfg.LogLevel
	if opts.consoleLevel != "" {
		consoleLevel = opts.consoleLevel
	}
	console := logger.NewConsoleLogger(errOut, consoleLevel)
	var fileLog *logger.FileLogger
	if cfg.LogDir != "" {
		fileLog, err = logger.NewFileLogger(cfg.LogDir, cfg.LogLevel, runID)
		if err != nil {
			return usageError("failed to create file logger: %v", err)
		}
		defer fileLog.Close()
	}
	log := logger.NewMultiLogger(console, loggerOrNil(fileLog))

	if cfg.Lock {
		lockDir, err := config.GetLockDir()
		if err != nil {
			return usageError("failed to resolve lock directory: %v", err)
		}
		lock, err := filelock.AcquireRunLock(lockDir, absRoot)
		if errors.Is(err, filelock.ErrLocked) {
			return usageError("another lf run is already processing %s", absRoot)
		}
		if err != nil {
			return usageError("failed to acquire run lock: %v", err)
		}
		defer lock.Unlock()
	}

	classifier := classify.New(cfg.SampleSize)
	walker := fileutil.NewWalker(fileutil.WalkOptions{
		ExcludeDirs: cfg.ExcludeDirs,
		Extensions:  cfg.Extensions,
		Gitignore:   cfg.Gitignore,
	})
	rw := rewriter.New(classifier, nil, rewriter.Options{
		MaxFileSize: cfg.MaxFileSize,
		DryRun:      cfg.DryRun,
	})
	scheduler := executor.NewScheduler(walker, classifier, rw, executor.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	scheduler.SetLogger(log)
	// At debug level every file is logged, so the counter is left off
	if level := console.Level(); !opts.quiet && progress.Enabled() && level != "debug" && level != "trace" {
		console.SetStatusLine(progress)
		scheduler.SetObserver(progress)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Restore default signal handling once cancelled so a second interrupt kills the process
	context.AfterFunc(ctx, stop)

	if !opts.quiet {
		display.PrintStart(out, absRoot, scheduler.Workers(), cfg.DryRun)
	}
	if fileLog != nil {
		log.Infof("Run log: %s", fileLog.Path())
	}

	result, err := scheduler.Run(ctx, absRoot)
	progress.Finish()
	if err != nil {
		log.Errorf("%v", err)
		return &ExitError{Code: ExitUsage}
	}

	printResult(out, errOut, result, opts.quiet)
	if fileLog != nil {
		fileLog.LogSummary(result)
	}

	code := exitCodeFor(result)

	// Interrupted runs are still recorded, so use a context that outlives ctx
	bg := context.WithoutCancel(ctx)
	if cfg.History.Enabled {
		if err := recordHistory(bg, cfg, runID, startedAt, result); err != nil {
			log.Warnf("Failed to record run history: %v", err)
		}
	}
	if opts.reportPath != "" {
		run := report.Run{ID: runID, StartedAt: startedAt, Result: result}
		if err := report.Write(opts.reportPath, run); err != nil {
			log.Errorf("%v", err)
			code = max(code, ExitFailures)
		} else if !opts.quiet {
			fmt.Fprintf(out, "Report written to %s\n", opts.reportPath)
		}
	}

	if opts.watch && !result.Interrupted {
		watched, err := watchTree(ctx, walker, scheduler, absRoot, log)
		if err != nil {
			log.Errorf("%v", err)
			return &ExitError{Code: ExitUsage}
		}
		printResult(out, errOut, watched, opts.quiet)
		if fileLog != nil {
			fileLog.LogSummary(watched)
		}
		if watched.HasFailures() {
			code = max(code, ExitFailures)
		}
	}

	if code == ExitOK {
		return nil
	}
	return &ExitError{Code: code}
}

func printResult(out, errOut io.Writer, result *models.AggregateResult, quiet bool) {
	if len(result.Warnings) > 0 {
		display.WarnWalk(result.Warnings).Display(errOut)
	}
	if quiet {
		display.PrintFailures(out, result.Failures)
		return
	}
	display.PrintSummary(out, result)
}

// exitCodeFor maps a finished run to its process exit code.
func exitCodeFor(result *models.AggregateResult) int {
	switch {
	case result.Interrupted:
		return ExitInterrupted
	case result.HasFailures():
		return ExitFailures
	default:
		return ExitOK
	}
}

func recordHistory(ctx context.Context, cfg *config.Config, runID string, startedAt time.Time, result *models.AggregateResult) error {
	dbPath, err := cfg.HistoryDBPath()
	if err != nil {
		return err
	}
	store, err := history.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Record(ctx, history.NewRun(runID, startedAt, result))
}

// loggerOrNil keeps a nil *FileLogger from becoming a non-nil Logger interface.
func loggerOrNil(fl *logger.FileLogger) logger.Logger {
	if fl == nil {
		return nil
	}
	return fl
}
