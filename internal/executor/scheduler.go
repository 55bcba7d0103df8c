package executor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrison/lf/internal/classify"
	"github.com/harrison/lf/internal/models"
)

// DefaultQueueSize bounds the number of discovered but unclaimed tasks.
const DefaultQueueSize = 64

// TaskSource produces the lazy sequence of files to process.
type TaskSource interface {
	Walk(ctx context.Context, root string) (iter.Seq2[models.FileTask, error], error)
}

// Classifier decides whether a path is eligible for conversion.
type Classifier interface {
	Classify(path string) models.Classification
}

// FileRewriter converts one file and reports its outcome.
type FileRewriter interface {
	Rewrite(task models.FileTask) models.Outcome
	DryRun() bool
}

// Observer is notified of every outcome and walk warning as it is recorded.
// Calls come from the collecting goroutine only, one at a time.
type Observer interface {
	OnOutcome(o models.Outcome)
	OnWarning(w models.Warning)
}

// Options configures a Scheduler.
type Options struct {
	// Workers is the number of parallel workers (0 = GOMAXPROCS)
	Workers int
	// QueueSize is the capacity of the task queue between walker and workers
	QueueSize int
}

// Scheduler distributes discovered files across a fixed pool of workers and
// aggregates their outcomes. The worker count affects only throughput; the
// aggregate counts and the final file contents do not depend on it.
type Scheduler struct {
	source     TaskSource
	classifier Classifier
	rewriter   FileRewriter
	workers    int
	queueSize  int
	logger     Logger
	observer   Observer
}

// NewScheduler constructs a Scheduler.
func NewScheduler(source TaskSource, classifier Classifier, rewriter FileRewriter, opts Options) *Scheduler {
	if source == nil {
		panic("task source cannot be nil")
	}
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if rewriter == nil {
		panic("rewriter cannot be nil")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Scheduler{
		source:     source,
		classifier: classifier,
		rewriter:   rewriter,
		workers:    workers,
		queueSize:  queueSize,
	}
}

// SetLogger sets the logger. Nil disables logging.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetObserver sets the outcome observer. Nil disables notifications.
func (s *Scheduler) SetObserver(observer Observer) {
	s.observer = observer
}

// Workers returns the effective worker count.
func (s *Scheduler) Workers() int {
	return s.workers
}

// walkSummary is handed from the producer to the collector once the walk ends.
type walkSummary struct {
	warnings []models.Warning
	produced int
}

// Run walks root and processes every discovered file.
//
// One producer goroutine feeds a bounded queue; the walk blocks while the
// queue is full. Workers claim tasks from the queue and send outcomes to the
// calling goroutine, which is the only writer of the AggregateResult.
//
// When ctx is cancelled the walk stops, tasks still queued are counted as
// Abandoned, and rewrites already started run to completion. The partial
// result is returned with Interrupted set. An error is returned only when
// the walk cannot start.
func (s *Scheduler) Run(ctx context.Context, root string) (*models.AggregateResult, error) {
	startTime := time.Now()

	seq, err := s.source.Walk(ctx, root)
	if err != nil {
		return nil, &RunError{Phase: PhaseWalk, Root: root, Err: err}
	}

	result := models.NewAggregateResult(root)
	result.DryRun = s.rewriter.DryRun()

	tasks := make(chan models.FileTask, s.queueSize)
	outcomes := make(chan models.Outcome, s.workers)
	walkDone := make(chan walkSummary, 1)
	warningsCh := make(chan models.Warning, s.queueSize)

	go s.produce(ctx, seq, tasks, warningsCh, walkDone)

	var abandoned atomic.Int64
	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for task := range tasks {
				// Claimed after cancellation: never started, only drained
				if ctx.Err() != nil {
					abandoned.Add(1)
					continue
				}
				outcomes <- s.process(task)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcomes != nil || warningsCh != nil {
		select {
		case o, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			s.record(result, o)
		case w, ok := <-warningsCh:
			if !ok {
				warningsCh = nil
				continue
			}
			result.AddWarning(w.Path, w.Err)
			if s.observer != nil {
				s.observer.OnWarning(w)
			}
		}
	}

	summary := <-walkDone
	result.Abandoned = int(abandoned.Load())
	result.Interrupted = ctx.Err() != nil
	result.Duration = time.Since(startTime)

	GracefulDebug(s.logger, "Walk produced %d task(s), %d warning(s), %d abandoned",
		summary.produced, len(summary.warnings), result.Abandoned)

	return result, nil
}

// produce runs the walk, feeding tasks into the bounded queue.
func (s *Scheduler) produce(ctx context.Context, seq iter.Seq2[models.FileTask, error], tasks chan<- models.FileTask, warnings chan<- models.Warning, done chan<- walkSummary) {
	var summary walkSummary
	defer func() {
		close(tasks)
		close(warnings)
		done <- summary
	}()

	for task, err := range seq {
		if err != nil {
			w := models.Warning{Path: warningPath(err), Err: err}
			summary.warnings = append(summary.warnings, w)
			GracefulWarn(s.logger, "%v", err)
			select {
			case warnings <- w:
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case tasks <- task:
			summary.produced++
		case <-ctx.Done():
			return
		}
	}
}

// process classifies and rewrites one task. A panic is isolated to this task
// and reported as its Failed outcome.
func (s *Scheduler) process(task models.FileTask) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = models.Failed(task.Path, NewTaskError(task.Path, "panic while processing", fmt.Errorf("%v", r)))
		}
	}()

	if task.IsLink() {
		GracefulDebug(s.logger, "Following link %s to %s", task.Path, task.Target)
	}
	c := s.classifier.Classify(task.WritePath())
	switch c.Kind {
	case models.KindDirectory:
		return models.Skipped(task.Path, models.ReasonDirectory, nil)
	case models.KindSymlink:
		return models.Skipped(task.Path, models.ReasonSymlink, nil)
	case models.KindUnreadable:
		if errors.Is(c.Err, classify.ErrNotRegular) {
			return models.Skipped(task.Path, models.ReasonNotRegular, c.Err)
		}
		return models.Skipped(task.Path, models.ReasonUnreadable, c.Err)
	case models.KindBinaryFile:
		return models.Skipped(task.Path, models.ReasonBinary, nil)
	}

	return s.rewriter.Rewrite(task)
}

// Process handles one task on the calling goroutine and records its outcome
// in result exactly as Run would. It serves files reported after a run, such
// as those from a watcher.
func (s *Scheduler) Process(result *models.AggregateResult, task models.FileTask) models.Outcome {
	result.DryRun = s.rewriter.DryRun()

	var o models.Outcome
	if err := task.Validate(); err != nil {
		o = models.Failed(task.Path, NewTaskError(task.Path, "invalid task", err))
	} else {
		o = s.process(task)
	}
	s.record(result, o)
	return o
}

// record adds an outcome to the aggregate and notifies the observer.
func (s *Scheduler) record(result *models.AggregateResult, o models.Outcome) {
	result.Add(o)

	switch o.Status {
	case models.StatusConverted:
		if result.DryRun {
			GracefulInfo(s.logger, "Would convert: %s", o.Path)
		} else {
			GracefulInfo(s.logger, "Converted: %s", o.Path)
		}
	case models.StatusFailed:
		GracefulDebug(s.logger, "Failed: %s: %v", o.Path, o.Err)
	case models.StatusSkipped:
		if o.Err != nil {
			GracefulDebug(s.logger, "Skipped (%s): %s: %v", o.Reason, o.Path, o.Err)
		} else {
			GracefulDebug(s.logger, "Skipped (%s): %s", o.Reason, o.Path)
		}
	default:
		GracefulDebug(s.logger, "%s: %s", o.Status, o.Path)
	}

	if s.observer != nil {
		s.observer.OnOutcome(o)
	}
}

// warningPath extracts the affected path from a walk warning when available.
func warningPath(err error) string {
	var pe interface{ WarningPath() string }
	if errors.As(err, &pe) {
		return pe.WarningPath()
	}
	return ""
}
