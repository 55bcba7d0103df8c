package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/lf/internal/config"
	"github.com/harrison/lf/internal/filelock"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// setupHome points LF_HOME at a temp dir so locks and history stay out of the user's cache.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	return home
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// execute runs the root command with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	stdout, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("--help returned error: %v", err)
	}
	for _, want := range []string{"lf [PATH]", "line endings", "--dry-run", "--workers", "history", "Exit codes:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"history", "version"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "lf "+Version) {
		t.Errorf("unexpected version output %q", stdout)
	}
}

func TestRunConvertsTree(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{
		"a.txt":       "one\r\ntwo\r\n",
		"b.bin":       "x\x00\r\ny",
		"sub/c.md":    "a\rb\r",
		"sub/d.go":    "package d\n",
		".git/config": "[core]\r\n",
	})

	stdout, _, err := execute(t, dir, "-j", "2")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "one\ntwo\n" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "sub", "c.md")); got != "a\nb\n" {
		t.Errorf("c.md = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.bin")); got != "x\x00\r\ny" {
		t.Errorf("binary file was modified: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, ".git", "config")); got != "[core]\r\n" {
		t.Errorf(".git must not be walked: %q", got)
	}

	for _, want := range []string{"with 2 worker(s)", "Done in", "Converted:          2", "Already normalized: 1", "(binary: 1)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}

	// A second run finds nothing to do
	stdout, _, err = execute(t, dir)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(stdout, "Converted:          0") {
		t.Errorf("second run converted files:\n%s", stdout)
	}
}

func TestRunDryRun(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\ny\rz\n"})

	stdout, _, err := execute(t, "--dry-run", dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\r\ny\rz\n" {
		t.Errorf("dry run modified file: %q", got)
	}
	for _, want := range []string{"(dry run)", "Would convert:      1", "Line endings:       1 CRLF, 1 CR (1 mixed file)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunSingleFile(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n", "b.txt": "y\r\n"})

	if _, _, err := execute(t, filepath.Join(dir, "a.txt")); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\n" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.txt")); got != "y\r\n" {
		t.Errorf("b.txt outside the given path was modified: %q", got)
	}
}

func TestRunExtensionsAndExcludes(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{
		"a.txt":        "x\r\n",
		"b.md":         "x\r\n",
		"vendor/c.txt": "x\r\n",
	})

	if _, _, err := execute(t, dir, "--ext", "txt", "--exclude", "vendor", "-q"); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\n" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.md")); got != "x\r\n" {
		t.Errorf("b.md should be filtered by --ext: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "vendor", "c.txt")); got != "x\r\n" {
		t.Errorf("vendor should be excluded: %q", got)
	}
}

func TestRunUsesConfigFile(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{
		config.FileName: "extensions: [md]\nmax_file_size: 4\n",
		"a.md":          "x\r\n",
		"big.md":        "xxxxxxxx\r\n",
		"b.txt":         "x\r\n",
	})

	stdout, _, err := execute(t, dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.md")); got != "x\n" {
		t.Errorf("a.md = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "big.md")); got != "xxxxxxxx\r\n" {
		t.Errorf("big.md exceeds max_file_size: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.txt")); got != "x\r\n" {
		t.Errorf("b.txt filtered by config: %q", got)
	}
	if !strings.Contains(stdout, "too-large: 1") {
		t.Errorf("expected too-large skip in output:\n%s", stdout)
	}

	// Flags win over the file
	if _, _, err := execute(t, dir, "--max-size", "0", "-q"); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "big.md")); got != "xxxxxxxx\n" {
		t.Errorf("big.md = %q", got)
	}
}

func TestRunQuiet(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})

	stdout, stderr, err := execute(t, "-q", dir)
	if err != nil {
		t.Fatal(err)
	}
	if stdout != "" {
		t.Errorf("quiet run printed to stdout: %q", stdout)
	}
	if stderr != "" {
		t.Errorf("quiet run printed to stderr: %q", stderr)
	}
}

func TestRunVerboseLogsFiles(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n", "b.txt": "y\n"})

	_, stderr, err := execute(t, "-v", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "Converted: "+filepath.Join(dir, "a.txt")) {
		t.Errorf("missing converted log line:\n%s", stderr)
	}
	if !strings.Contains(stderr, "b.txt") {
		t.Errorf("debug output should mention unchanged files:\n%s", stderr)
	}
}

func TestRunFailureExitCode(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	setupHome(t)
	dir := writeTree(t, map[string]string{"ro/a.txt": "x\r\n", "b.txt": "y\r\n"})
	ro := filepath.Join(dir, "ro")
	if err := os.Chmod(ro, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(ro, 0755) })

	stdout, _, err := execute(t, dir)
	if code := ExitCode(err); code != ExitFailures {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, ExitFailures, err)
	}
	if Message(err) != "" {
		t.Errorf("failures are reported in the summary, got message %q", Message(err))
	}
	if !strings.Contains(stdout, "Failures (1):") {
		t.Errorf("missing failure listing:\n%s", stdout)
	}
	if got := readFile(t, filepath.Join(dir, "ro", "a.txt")); got != "x\r\n" {
		t.Errorf("failed file must keep its original content: %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "b.txt")); got != "y\n" {
		t.Errorf("other files still convert: %q", got)
	}
}

func TestRunUsageErrors(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing root", []string{filepath.Join(dir, "missing")}, "missing"},
		{"verbose and quiet", []string{"-v", "-q", dir}, "--verbose and --quiet"},
		{"bad max size", []string{"--max-size", "lots", dir}, "--max-size"},
		{"negative workers", []string{"-j", "-1", dir}, "workers must be >= 0"},
		{"bad log level", []string{"--log-level", "loud", dir}, "invalid log_level"},
		{"missing config", []string{"--config", filepath.Join(dir, "nope.yaml"), dir}, "config file"},
		{"too many args", []string{dir, dir}, "accepts at most 1 arg"},
		{"unknown flag", []string{"--bogus", dir}, "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, tt.args...)
			if code := ExitCode(err); code != ExitUsage {
				t.Fatalf("exit code = %d, want %d (err: %v)", code, ExitUsage, err)
			}
			if !strings.Contains(Message(err)+stderr, tt.want) {
				t.Errorf("error %q / stderr %q does not mention %q", Message(err), stderr, tt.want)
			}
		})
	}

	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\r\n" {
		t.Errorf("usage errors must not touch files: %q", got)
	}
}

func TestRunLockHeld(t *testing.T) {
	home := setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})

	lock, err := filelock.AcquireRunLock(filepath.Join(home, "locks"), dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Unlock()

	_, _, err = execute(t, dir)
	if code := ExitCode(err); code != ExitUsage {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, ExitUsage, err)
	}
	if !strings.Contains(Message(err), "already processing") {
		t.Errorf("unexpected message %q", Message(err))
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\r\n" {
		t.Errorf("locked run modified file: %q", got)
	}

	// --no-lock bypasses the lock
	if _, _, err := execute(t, "--no-lock", "-q", dir); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\n" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestRunLogDir(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})
	logDir := t.TempDir()

	if _, _, err := execute(t, "-q", "--log-dir", logDir, dir); err != nil {
		t.Fatal(err)
	}
	log := readFile(t, filepath.Join(logDir, "latest.log"))
	for _, want := range []string{"=== lf Run Log ===", "Converted: " + filepath.Join(dir, "a.txt")} {
		if !strings.Contains(log, want) {
			t.Errorf("run log missing %q:\n%s", want, log)
		}
	}
}

func TestRunReportAndHistory(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})
	reportPath := filepath.Join(t.TempDir(), "report.md")

	stdout, _, err := execute(t, "--history", "--report", reportPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Report written to "+reportPath) {
		t.Errorf("missing report line:\n%s", stdout)
	}
	doc := readFile(t, reportPath)
	if !strings.Contains(doc, "# lf run report") || !strings.Contains(doc, "| Converted | 1 |") {
		t.Errorf("unexpected report:\n%s", doc)
	}

	listing, _, err := execute(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(listing, "CONVERTED") || !strings.Contains(listing, dir) {
		t.Fatalf("history listing missing run:\n%s", listing)
	}

	// The listing starts with the header, then the run whose ID is the first field
	lines := strings.Split(strings.TrimSpace(listing), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one run, got:\n%s", listing)
	}
	runID := strings.Fields(lines[1])[0]

	detail, _, err := execute(t, "history", runID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(detail, "Run "+runID) || !strings.Contains(detail, "Converted:          1") {
		t.Errorf("unexpected detail:\n%s", detail)
	}

	_, _, err = execute(t, "history", "no-such-run")
	if ExitCode(err) != ExitUsage {
		t.Errorf("unknown run id should be a usage error, got %v", err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	setupHome(t)
	stdout, _, err := execute(t, "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "No runs recorded yet") {
		t.Errorf("unexpected output %q", stdout)
	}

	_, _, err = execute(t, "history", "--limit", "0")
	if ExitCode(err) != ExitUsage {
		t.Errorf("--limit 0 should be a usage error, got %v", err)
	}
}

func TestRunReportWriteFailure(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := execute(t, "--report", filepath.Join(blocker, "report.md"), dir)
	if code := ExitCode(err); code != ExitFailures {
		t.Fatalf("exit code = %d, want %d", code, ExitFailures)
	}
	if !strings.Contains(stderr, "write report") {
		t.Errorf("missing report error:\n%s", stderr)
	}
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\n" {
		t.Errorf("conversion should still happen: %q", got)
	}
}

func TestOverridesFromFlags(t *testing.T) {
	cmd := NewRootCommand()
	err := cmd.ParseFlags([]string{
		"-j", "3", "--exclude", "vendor", "--exclude", "dist", "--ext", "go",
		"--max-size", "1KiB", "--no-lock", "-v", "--history",
	})
	if err != nil {
		t.Fatal(err)
	}

	o, opts, err := overridesFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if o.Workers == nil || *o.Workers != 3 {
		t.Errorf("Workers = %v", o.Workers)
	}
	if o.QueueSize != nil {
		t.Error("unset flags must not override config")
	}
	if o.DryRun != nil {
		t.Error("unset --dry-run must not override config")
	}
	if len(o.ExcludeDirs) != 2 || o.ExcludeDirs[1] != "dist" {
		t.Errorf("ExcludeDirs = %v", o.ExcludeDirs)
	}
	if len(o.Extensions) != 1 || o.Extensions[0] != "go" {
		t.Errorf("Extensions = %v", o.Extensions)
	}
	if o.MaxFileSize == nil || *o.MaxFileSize != 1024 {
		t.Errorf("MaxFileSize = %v", o.MaxFileSize)
	}
	if o.Lock == nil || *o.Lock {
		t.Errorf("Lock = %v, want false", o.Lock)
	}
	if o.LogLevel == nil || *o.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", o.LogLevel)
	}
	if o.History == nil || !*o.History {
		t.Errorf("History = %v", o.History)
	}
	if opts.quiet {
		t.Error("quiet should be false")
	}
}

func TestOverridesLogLevelWinsOverQuiet(t *testing.T) {
	cmd := NewRootCommand()
	if err := cmd.ParseFlags([]string{"-q", "--log-level", "error"}); err != nil {
		t.Fatal(err)
	}
	o, opts, err := overridesFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if *o.LogLevel != "error" || opts.consoleLevel != "error" || !opts.quiet {
		t.Errorf("LogLevel = %s, console = %s, quiet = %v", *o.LogLevel, opts.consoleLevel, opts.quiet)
	}
}

func TestOverridesQuietLeavesConfiguredLevel(t *testing.T) {
	cmd := NewRootCommand()
	if err := cmd.ParseFlags([]string{"-q"}); err != nil {
		t.Fatal(err)
	}
	o, opts, err := overridesFromFlags(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if o.LogLevel != nil {
		t.Errorf("-q must not change the configured level, got %s", *o.LogLevel)
	}
	if opts.consoleLevel != "warn" {
		t.Errorf("consoleLevel = %q, want warn", opts.consoleLevel)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"512", 512, false},
		{"1KiB", 1024, false},
		{"10MB", 10_000_000, false},
		{"2 MiB", 2 << 20, false},
		{"lots", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExitCodeAndMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"nil", nil, ExitOK, ""},
		{"silent exit error", &ExitError{Code: ExitInterrupted}, ExitInterrupted, ""},
		{"usage error", usageError("bad %s", "flag"), ExitUsage, "bad flag"},
		{"wrapped", fmt.Errorf("run: %w", usageError("bad root")), ExitUsage, "run: bad root"},
		{"plain error", errors.New("unknown command"), ExitUsage, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.code {
				t.Errorf("ExitCode = %d, want %d", got, tt.code)
			}
			if got := Message(tt.err); got != tt.message {
				t.Errorf("Message = %q, want %q", got, tt.message)
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunWatch(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewRootCommand()
	var stdout, stderr syncBuffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--watch", dir})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, "watcher to start", func() bool { return strings.Contains(stderr.String(), "Watching") })
	if got := readFile(t, filepath.Join(dir, "a.txt")); got != "x\n" {
		t.Errorf("initial run did not convert a.txt: %q", got)
	}

	newFile := filepath.Join(dir, "sub", "b.txt")
	if err := os.MkdirAll(filepath.Dir(newFile), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newFile, []byte("y\r\nz\r\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "b.txt to be normalized", func() bool {
		data, err := os.ReadFile(newFile)
		return err == nil && string(data) == "y\nz\n"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	// One summary for the initial run and one for the watch session
	if n := strings.Count(stdout.String(), "Done in"); n != 2 {
		t.Errorf("expected 2 summaries, got %d:\n%s", n, stdout.String())
	}
}

func TestRunWatchRequiresDirectory(t *testing.T) {
	setupHome(t)
	dir := writeTree(t, map[string]string{"a.txt": "x\r\n"})

	_, _, err := execute(t, "--watch", filepath.Join(dir, "a.txt"))
	if ExitCode(err) != ExitUsage || !strings.Contains(Message(err), "requires a directory") {
		t.Errorf("unexpected error %v", err)
	}
}
