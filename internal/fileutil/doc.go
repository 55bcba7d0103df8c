// Package fileutil discovers the files lf converts.
//
// The walker enumerates a directory tree lazily: tasks are produced one at a
// time as filepath.WalkDir reaches them, so a consumer with a bounded queue
// never holds the whole file list in memory.
//
// # Traversal Rules
//
//   - Directories are recursed unless their name is in ExcludeDirs
//     (default: .git, .hg, .svn) or the root .gitignore matches them.
//   - Regular files are yielded, optionally filtered by extension.
//   - Symlinks to regular files are yielded with their resolved Target when
//     the target lies outside the walked root. Targets inside the root are
//     reached directly and each outside target is yielded at most once.
//   - Symlinks to directories are never followed. This guarantees termination
//     on cyclic links without tracking inode identities.
//   - FIFOs, sockets and devices are ignored.
//
// # Error Tolerance
//
// A directory that cannot be read, or a broken link, is reported as a
// *WalkWarning in the sequence and the walk continues with the next entry.
// Only problems with the root itself (missing, not a file or directory,
// unreadable .gitignore) are returned as errors from Walk.
//
// # Usage
//
//	seq, err := fileutil.NewWalker(fileutil.WalkOptions{
//	    ExcludeDirs: fileutil.DefaultExcludeDirs,
//	    Gitignore:   true,
//	}).Walk(ctx, "/path/to/project")
//	if err != nil {
//	    return err
//	}
//	for task, err := range seq {
//	    if err != nil {
//	        log.Printf("warning: %v", err)
//	        continue
//	    }
//	    fmt.Println(task.Path)
//	}
//
// # Ordering
//
// Entries are visited in lexical order within each directory. Callers must
// not rely on it: only completeness of the walk is guaranteed.
package fileutil
