package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for lf
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lf [PATH]",
		Short: "Normalize line endings to LF across a directory tree",
		Long: `lf rewrites CRLF and lone CR line endings to LF in every text file
under PATH (default: the current directory).

Binary files are detected and left untouched, files that already use LF
are never rewritten, and every replacement is atomic: a file is either
fully converted or left exactly as it was.

Files are processed in parallel by a bounded pool of workers.

Exit codes:
  0    every file converted, already normalized or skipped
  1    at least one file failed to convert
  2    invalid arguments, configuration or run lock held
  130  interrupted`,
		Example: `  # Normalize the current directory
  lf

  # Show what would change without writing
  lf --dry-run ./src

  # Only Go and Markdown files, 8 workers, honoring .gitignore
  lf -j 8 --ext go --ext md --gitignore

  # Keep a run report and record the run in history
  lf --report lf-report.html --history`,
		Args:    cobra.MaximumNArgs(1),
		Version: Version,
		RunE:    runNormalize,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addRunFlags(cmd)

	// Add subcommands
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
