package models

import (
	"errors"
	"path/filepath"
)

// FileTask is one discovered candidate file awaiting classification and possible conversion.
// A FileTask is owned by exactly one worker from the moment it is claimed until its
// outcome is reported.
type FileTask struct {
	Path   string // Absolute path as discovered by the walker
	Target string // Resolved path when Path is a symlink to a regular file (empty otherwise)
	Seq    int    // Discovery ordinal, starting at 1
}

// Validate checks if the task has all required fields
func (t FileTask) Validate() error {
	if t.Path == "" {
		return errors.New("task path is required")
	}
	if !filepath.IsAbs(t.Path) {
		return errors.New("task path must be absolute")
	}
	if t.Target != "" && !filepath.IsAbs(t.Target) {
		return errors.New("task target must be absolute")
	}
	return nil
}

// IsLink returns true if the task was discovered through a symlink
func (t FileTask) IsLink() bool {
	return t.Target != ""
}

// WritePath returns the path whose contents are read and replaced.
// For links this is the resolved target so the link itself survives the rewrite.
func (t FileTask) WritePath() string {
	if t.IsLink() {
		return t.Target
	}
	return t.Path
}

// Kind is the classification tag produced for a filesystem entry.
type Kind int

const (
	KindTextFile Kind = iota
	KindBinaryFile
	KindDirectory
	KindSymlink
	KindUnreadable
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindTextFile:
		return "text"
	case KindBinaryFile:
		return "binary"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// Classification is the verdict for one entry. Err is set only for KindUnreadable.
type Classification struct {
	Kind Kind
	Err  error
}
