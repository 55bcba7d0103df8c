// Package rewriter converts the line endings of a single file in place.
//
// A file is read whole, checked against the binary heuristic, normalized and,
// only if something changed, replaced through an atomic temp-file rename.
package rewriter

import (
	"os"

	"github.com/harrison/lf/internal/classify"
	"github.com/harrison/lf/internal/filelock"
	"github.com/harrison/lf/internal/lineending"
	"github.com/harrison/lf/internal/models"
)

// preservedModeBits are copied from the original file onto its replacement.
const preservedModeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// Writer replaces a file's contents in a single atomic step.
type Writer interface {
	Write(path string, data []byte, perm os.FileMode) error
}

// Options configures a Rewriter.
type Options struct {
	// MaxFileSize skips files larger than this many bytes (0 = unlimited)
	MaxFileSize int64
	// DryRun reports conversions without writing anything
	DryRun bool
}

// Rewriter applies line-ending normalization to one file at a time.
// It holds no per-file state and is safe for concurrent use.
type Rewriter struct {
	classifier *classify.Classifier
	writer     Writer
	opts       Options
}

// New creates a Rewriter. A nil classifier uses the default sample size and a
// nil writer uses filelock.NewAtomicWriter.
func New(classifier *classify.Classifier, writer Writer, opts Options) *Rewriter {
	if classifier == nil {
		classifier = classify.New(classify.DefaultSampleSize)
	}
	if writer == nil {
		writer = filelock.NewAtomicWriter()
	}
	return &Rewriter{
		classifier: classifier,
		writer:     writer,
		opts:       opts,
	}
}

// DryRun reports whether the rewriter leaves files untouched.
func (r *Rewriter) DryRun() bool {
	return r.opts.DryRun
}

// Rewrite converts the file behind task and reports exactly one outcome.
// Links are rewritten through their resolved target so the link itself survives.
func (r *Rewriter) Rewrite(task models.FileTask) models.Outcome {
	path := task.WritePath()

	info, err := os.Stat(path)
	if err != nil {
		return models.Failed(task.Path, NewRewriteError(path, OpStat, err))
	}
	if !info.Mode().IsRegular() {
		return models.Skipped(task.Path, models.ReasonNotRegular, nil)
	}
	if r.opts.MaxFileSize > 0 && info.Size() > r.opts.MaxFileSize {
		return models.Skipped(task.Path, models.ReasonTooLarge, nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Failed(task.Path, NewRewriteError(path, OpRead, err))
	}
	size := int64(len(data))

	// The file may have changed since it was first sampled; decide on what was read.
	if r.classifier.ClassifySample(data, false) == models.KindBinaryFile {
		out := models.Skipped(task.Path, models.ReasonBinary, nil)
		out.Bytes = size
		return out
	}

	endings := lineending.Count(data)
	if !endings.NeedsConversion() {
		return models.AlreadyNormalized(task.Path, size)
	}

	out := models.Converted(task.Path, size)
	out.Endings = endings
	if r.opts.DryRun {
		return out
	}

	normalized, _ := lineending.Normalize(data)
	if err := r.writer.Write(path, normalized, info.Mode()&preservedModeBits); err != nil {
		return models.Failed(task.Path, NewRewriteError(path, OpWrite, err))
	}

	return out
}
