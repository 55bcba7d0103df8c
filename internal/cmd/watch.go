package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harrison/lf/internal/executor"
	"github.com/harrison/lf/internal/fileutil"
	"github.com/harrison/lf/internal/logger"
	"github.com/harrison/lf/internal/models"
	"github.com/harrison/lf/internal/watch"
)

// fileStamp identifies the version of a file that lf itself wrote.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func statStamp(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, true
}

func (s fileStamp) same(other fileStamp) bool {
	return s.size == other.size && s.modTime.Equal(other.modTime)
}

// watchTree normalizes files under root as they are created or written,
// until ctx is cancelled. It returns the outcomes of the watch session.
//
// Replacing a file raises an event for it in turn. That event is dropped
// while the file is still exactly as lf left it.
func watchTree(ctx context.Context, walker *fileutil.Walker, scheduler *executor.Scheduler, root string, log logger.Logger) (*models.AggregateResult, error) {
	filter, err := walker.Filter(root)
	if err != nil {
		return nil, err
	}
	w, err := watch.New(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	start := time.Now()
	result := models.NewAggregateResult(root)
	written := make(map[string]fileStamp)
	log.Infof("Watching %s for changes (press Ctrl-C to stop)", filter.Root())

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, nil
		case event := <-w.Events():
			if stamp, ok := written[event.Path]; ok {
				delete(written, event.Path)
				if current, ok := statStamp(event.Path); ok && current.same(stamp) {
					log.Tracef("Ignoring own rewrite of %s", event.Path)
					continue
				}
			}

			log.Debugf("File %s: %s", event.Op, event.Path)
			o := scheduler.Process(result, models.FileTask{Path: event.Path})
			if o.Status == models.StatusConverted && !result.DryRun {
				if stamp, ok := statStamp(event.Path); ok {
					written[event.Path] = stamp
				}
			}
		case err := <-w.Errors():
			log.Warnf("Watch error: %v", err)
		}
	}
}
