package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/lf/internal/config"
	"github.com/harrison/lf/internal/history"
	"github.com/harrison/lf/internal/logger"
)

// NewHistoryCommand creates the 'lf history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [RUN-ID]",
		Short: "List recorded runs",
		Long: `List runs recorded with --history, most recent first.

With a RUN-ID, show that run in detail including every failed file.
The database lives in $LF_HOME/history.db unless history.db_path is set
in the configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	cmd.Flags().String("config", "", "Path to config file (default: ./.lf.yaml)")
	cmd.Flags().Duration("prune", 0, "Delete runs older than this duration (e.g. 720h) before listing")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	output := cmd.OutOrStdout()
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return usageError("--limit must be > 0, got %d", limit)
	}

	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromDir(".")
	}
	if err != nil {
		return usageError("failed to load config: %v", err)
	}

	dbPath, err := cfg.HistoryDBPath()
	if err != nil {
		return usageError("failed to resolve history database: %v", err)
	}
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(output, "No runs recorded yet. Use --history to record runs.")
		return nil
	}

	store, err := history.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	if cmd.Flags().Changed("prune") {
		age, _ := cmd.Flags().GetDuration("prune")
		n, err := store.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(output, "Pruned %d run(s)\n", n)
	}

	if len(args) == 1 {
		run, err := store.Get(ctx, args[0])
		if errors.Is(err, history.ErrNotFound) {
			return usageError("no recorded run with id %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		displayRun(output, run)
		return nil
	}

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(output, "No runs recorded yet. Use --history to record runs.")
		return nil
	}
	displayRuns(output, runs)
	return nil
}

func runStatus(run history.Run) string {
	switch {
	case run.Interrupted:
		return color.YellowString("interrupted")
	case run.Failed > 0:
		return color.RedString("failed")
	case run.DryRun:
		return color.CyanString("dry run")
	default:
		return color.GreenString("ok")
	}
}

// displayRuns prints one line per run in aligned columns.
func displayRuns(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tCONVERTED\tUNCHANGED\tSKIPPED\tFAILED\tROOT")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.ID,
			humanize.Time(run.StartedAt),
			logger.FormatDuration(run.Duration),
			runStatus(run),
			run.Converted,
			run.AlreadyNormalized,
			run.Skipped,
			run.Failed,
			run.Root,
		)
	}
	tw.Flush()
}

func displayRun(w io.Writer, run history.Run) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Root:               %s\n", run.Root)
	fmt.Fprintf(w, "  Started:            %s (%s)\n", run.StartedAt.Local().Format(time.RFC3339), humanize.Time(run.StartedAt))
	fmt.Fprintf(w, "  Duration:           %s\n", logger.FormatDuration(run.Duration))
	fmt.Fprintf(w, "  Status:             %s\n", runStatus(run))
	fmt.Fprintf(w, "  Converted:          %d\n", run.Converted)
	fmt.Fprintf(w, "  Already normalized: %d\n", run.AlreadyNormalized)
	fmt.Fprintf(w, "  Skipped:            %d\n", run.Skipped)
	fmt.Fprintf(w, "  Failed:             %d\n", run.Failed)
	if run.Warnings > 0 {
		fmt.Fprintf(w, "  Warnings:           %d\n", run.Warnings)
	}
	if run.Interrupted {
		fmt.Fprintf(w, "  Abandoned:          %d\n", run.Abandoned)
	}
	if len(run.Failures) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.RedString("Failures (%d):", len(run.Failures)))
		for _, f := range run.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Error)
		}
	}
}
