package fileutil

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/lf/internal/models"
)

// DefaultExcludeDirs are version-control metadata directories never walked by default.
var DefaultExcludeDirs = []string{".git", ".hg", ".svn"}

// WalkOptions configures the directory walk
type WalkOptions struct {
	// ExcludeDirs is a list of directory names to skip entirely (e.g., ".git", "node_modules")
	ExcludeDirs []string
	// Extensions restricts the walk to these file extensions (empty = all files)
	Extensions []string
	// Gitignore skips paths matched by the root .gitignore
	Gitignore bool
}

// WalkWarning is a non-fatal problem met while walking. The affected
// subtree or entry yields no tasks; the rest of the walk continues.
type WalkWarning struct {
	Path string
	Err  error
}

// Error implements the error interface for WalkWarning.
func (w *WalkWarning) Error() string {
	return fmt.Sprintf("cannot access %s: %v", w.Path, w.Err)
}

// Unwrap returns the underlying error.
func (w *WalkWarning) Unwrap() error {
	return w.Err
}

// WarningPath returns the path the warning refers to.
func (w *WalkWarning) WarningPath() string {
	return w.Path
}

// Walker enumerates candidate files under a root.
type Walker struct {
	excludeDirs map[string]bool
	extensions  map[string]bool
	gitignore   bool
}

// NewWalker creates a Walker for the given options.
func NewWalker(opts WalkOptions) *Walker {
	excludeMap := make(map[string]bool, len(opts.ExcludeDirs))
	for _, dir := range opts.ExcludeDirs {
		excludeMap[dir] = true
	}

	// Ensure extensions start with a dot, compare case-insensitively
	extMap := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}

	return &Walker{
		excludeDirs: excludeMap,
		extensions:  extMap,
		gitignore:   opts.Gitignore,
	}
}

// Walk validates root and returns a lazy sequence over the files beneath it.
//
// Each element is either a FileTask (nil error) or a *WalkWarning. Directories
// are recursed, regular files are yielded and symlinks to regular files are
// yielded with their resolved Target when that target lies outside the root.
// Symlinks to directories are never followed, so cyclic links cannot loop.
// If root is itself a regular file the sequence holds just that file.
//
// The sequence is restartable: ranging over it again walks the tree again.
// It stops early when ctx is cancelled or the consumer stops ranging.
func (w *Walker) Walk(ctx context.Context, root string) (iter.Seq2[models.FileTask, error], error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if info.Mode().IsRegular() {
		return w.single(absRoot)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is neither a directory nor a regular file: %s", root)
	}

	// Walk the real directory so a root given as a symlink is still descended.
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	var matcher *IgnoreMatcher
	if w.gitignore {
		matcher, err = NewIgnoreMatcher(realRoot)
		if err != nil {
			return nil, err
		}
	}

	return func(yield func(models.FileTask, error) bool) {
		w.walkTree(ctx, realRoot, matcher, yield)
	}, nil
}

// single yields the one task for a file root.
func (w *Walker) single(absPath string) (iter.Seq2[models.FileTask, error], error) {
	t := models.FileTask{Path: absPath, Seq: 1}

	linfo, err := os.Lstat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}
	if linfo.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve link %s: %w", absPath, err)
		}
		t.Target = target
	}

	return func(yield func(models.FileTask, error) bool) {
		yield(t, nil)
	}, nil
}

func (w *Walker) walkTree(ctx context.Context, root string, matcher *IgnoreMatcher, yield func(models.FileTask, error) bool) {
	seq := 0
	// Only link targets need remembering; targets inside root are reached directly.
	seenTargets := make(map[string]struct{})

	emit := func(t models.FileTask) bool {
		seq++
		t.Seq = seq
		return yield(t, nil)
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}

		if err != nil {
			if !yield(models.FileTask{}, &WalkWarning{Path: path, Err: err}) {
				return filepath.SkipAll
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip the root directory itself
		if path == root {
			return nil
		}

		rel, _ := filepath.Rel(root, path)

		if d.IsDir() {
			if w.excludeDirs[d.Name()] || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !w.wanted(d.Name()) || matcher.Match(rel, false) {
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, ok, warn := resolveFileLink(root, path)
			if warn != nil {
				if !yield(models.FileTask{}, warn) {
					return filepath.SkipAll
				}
				return nil
			}
			if !ok {
				return nil
			}
			// A target already reached through another link is not yielded again
			if _, dup := seenTargets[target]; dup {
				return nil
			}
			seenTargets[target] = struct{}{}
			if !emit(models.FileTask{Path: path, Target: target}) {
				return filepath.SkipAll
			}
		case d.Type().IsRegular():
			if !emit(models.FileTask{Path: path}) {
				return filepath.SkipAll
			}
		}
		// FIFOs, sockets and devices are not candidates

		return nil
	})
}

// wanted applies the extension allow-list.
func (w *Walker) wanted(name string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(name))]
}

// Filter applies a Walker's exclusion rules to single paths under one root.
// Watchers use it to vet paths reported after the initial walk.
type Filter struct {
	walker  *Walker
	root    string
	matcher *IgnoreMatcher
}

// Filter returns the path filter for root, loading the root .gitignore when enabled.
func (w *Walker) Filter(root string) (*Filter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	f := &Filter{walker: w, root: realRoot}
	if w.gitignore {
		if f.matcher, err = NewIgnoreMatcher(realRoot); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Root returns the resolved root the filter applies to.
func (f *Filter) Root() string {
	return f.root
}

// SkipDir reports whether the directory at path must not be descended into.
// Paths outside the root are always skipped.
func (f *Filter) SkipDir(path string) bool {
	rel, ok := f.rel(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	// A walk never reaches a directory below a skipped one
	parts := strings.Split(rel, string(filepath.Separator))
	for i, part := range parts {
		if f.walker.excludeDirs[part] || f.matcher.Match(filepath.Join(parts[:i+1]...), true) {
			return true
		}
	}
	return false
}

// Wants reports whether the file at path would be yielded by a walk of the root.
func (f *Filter) Wants(path string) bool {
	rel, ok := f.rel(path)
	if !ok || rel == "." {
		return false
	}
	if dir := filepath.Dir(path); f.SkipDir(dir) {
		return false
	}
	return f.walker.wanted(filepath.Base(path)) && !f.matcher.Match(rel, false)
}

func (f *Filter) rel(path string) (string, bool) {
	if !isWithin(f.root, path) {
		return "", false
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return "", false
	}
	return rel, true
}

// resolveFileLink decides whether the link at path should be yielded.
// ok is true only for links to regular files outside root.
func resolveFileLink(root, path string) (target string, ok bool, warn *WalkWarning) {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false, &WalkWarning{Path: path, Err: fmt.Errorf("broken link: %w", err)}
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", false, &WalkWarning{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		// Links to directories are never followed
		return "", false, nil
	}
	if isWithin(root, target) {
		return "", false, nil
	}
	return target, true, nil
}

// isWithin reports whether path is root or lies beneath it.
func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
