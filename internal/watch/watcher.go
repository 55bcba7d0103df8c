// Package watch reports files that are created or written beneath a root so
// they can be normalized as soon as they settle.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/harrison/lf/internal/filelock"
)

// Op represents the type of file operation
type Op int

const (
	// Created indicates a new file appeared (including renames into the tree)
	Created Op = iota
	// Written indicates an existing file was written to
	Written
)

// String returns a human-readable representation of the file operation
func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Written:
		return "written"
	default:
		return "unknown"
	}
}

// Event is a settled change to one candidate file
type Event struct {
	Path      string    // Absolute path to the file
	Op        Op        // Created if the file appeared while settling, else Written
	Timestamp time.Time // When the event was emitted
}

// PathFilter selects which directories are watched and which files are reported.
type PathFilter interface {
	Root() string
	SkipDir(path string) bool
	Wants(path string) bool
}

// DefaultDebounceDelay is the default delay for coalescing rapid writes
const DefaultDebounceDelay = 100 * time.Millisecond

// Watcher watches a directory tree for changed candidate files.
// Every directory not skipped by the filter is watched, including ones
// created after the watcher started.
type Watcher struct {
	watcher *fsnotify.Watcher
	filter  PathFilter
	events  chan Event
	errors  chan error
	done    chan struct{}

	mu            sync.Mutex
	debounceDelay time.Duration
	pending       map[string]*pendingEvent
	closed        bool
}

type pendingEvent struct {
	timer *time.Timer
	op    Op
}

// New creates a Watcher over filter.Root()
func New(filter PathFilter) (*Watcher, error) {
	return NewWithDelay(filter, DefaultDebounceDelay)
}

// NewWithDelay is New with an explicit debounce delay.
func NewWithDelay(filter PathFilter, delay time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:       watcher,
		filter:        filter,
		events:        make(chan Event, 100),
		errors:        make(chan error, 10),
		done:          make(chan struct{}),
		debounceDelay: delay,
		pending:       make(map[string]*pendingEvent),
	}

	if err := w.addRecursive(filter.Root(), false); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.processEvents()

	return w, nil
}

// addRecursive adds dir and every subdirectory the filter keeps. With report
// set, files already inside are reported as created; a directory moved into
// the tree arrives with its contents.
func (w *Watcher) addRecursive(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished or unreadable directories are not fatal
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			if report && d.Type().IsRegular() && !filelock.IsTempFile(path) && w.filter.Wants(path) {
				w.debounce(path, Created)
			}
			return nil
		}
		if w.filter.SkipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

// processEvents translates fsnotify events until Close
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = Created
	case event.Has(fsnotify.Write):
		op = Written
	default:
		// Removals, renames away and chmods leave nothing to normalize
		return
	}

	if op == Created {
		info, err := os.Lstat(path)
		if err == nil && info.IsDir() {
			if !w.filter.SkipDir(path) {
				if err := w.addRecursive(path, true); err != nil {
					w.sendError(err)
				}
			}
			return
		}
	}

	// Our own staging files appear and vanish around every rewrite
	if filelock.IsTempFile(path) || !w.filter.Wants(path) {
		return
	}

	w.debounce(path, op)
}

// debounce coalesces rapid events for the same file into one Event.
func (w *Watcher) debounce(path string, op Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if p, exists := w.pending[path]; exists {
		p.timer.Stop()
		if p.op == Created {
			op = Created
		}
	}

	p := &pendingEvent{op: op}
	p.timer = time.AfterFunc(w.debounceDelay, func() {
		w.mu.Lock()
		if w.pending[path] == p {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.sendEvent(path, op)
	})
	w.pending[path] = p
}

func (w *Watcher) sendEvent(path string, op Op) {
	event := Event{
		Path:      path,
		Op:        op,
		Timestamp: time.Now(),
	}

	select {
	case w.events <- event:
	case <-w.done:
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
		// Error channel full, drop the error
	}
}

// Events returns the channel of settled file changes
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Root returns the directory being watched
func (w *Watcher) Root() string {
	return w.filter.Root()
}

// Close stops the watcher and releases resources. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true

	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	close(w.done)

	return w.watcher.Close()
}
