// Package discover scans a directory tree for terminal dataset directories
// and the raw data files they contain.
package discover

import (
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
)

// RawFile is one matched data file inside a dataset directory.
type RawFile struct {
	Path      string
	CreatedAt time.Time
}

// Dataset is a terminal directory classified as holding experiment output,
// with every file under it that matched the extension list. Name is the
// directory's own leaf name.
type Dataset struct {
	Path  string
	Name  string
	Files []RawFile
}

// Walker performs a depth-bounded scan of a directory tree. Children whose
// name ends in TerminalSuffix are terminal dataset directories; other
// children are descended into while depth budget remains. The filesystem is
// injected so tests can run against an in-memory tree.
type Walker struct {
	FS             billy.Filesystem
	TerminalSuffix string
	Extensions     []string
	MaxDepth       int
	Verbose        bool
}

type workItem struct {
	path  string
	depth int
}

// Walk enumerates dataset directories under root and calls fn for each, in
// discovery order. The sequence is lazy and one-shot: fn sees each dataset
// as soon as its file scan completes, and a non-nil error from fn stops the
// walk and is returned. Unreadable subdirectories are skipped so one bad
// subtree cannot fail the batch; only an unreadable root is an error. The
// depth budget bounds traversal through symlink cycles during
// classification; the file scan under a terminal directory dedupes
// symlinked directories by resolved path instead.
func (w *Walker) Walk(root string, fn func(Dataset) error) error {
	fi, err := w.FS.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("root %s is not a directory", root)
	}

	queue := []workItem{{path: root, depth: w.MaxDepth}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		entries, err := w.FS.ReadDir(item.path)
		if err != nil {
			if w.Verbose {
				log.Printf("discover: skip unreadable %s: %v", item.path, err)
			}
			continue
		}

		for _, fi := range entries {
			child := path.Join(item.path, fi.Name())
			if !w.isDir(child, fi.IsDir()) {
				continue
			}
			if strings.HasSuffix(fi.Name(), w.TerminalSuffix) {
				ds := Dataset{
					Path:  child,
					Name:  fi.Name(),
					Files: w.collectFiles(child),
				}
				if err := fn(ds); err != nil {
					return err
				}
				continue
			}
			if item.depth > 0 {
				queue = append(queue, workItem{path: child, depth: item.depth - 1})
			} else if w.Verbose {
				log.Printf("discover: depth limit reached, not descending into %s", child)
			}
		}
	}
	return nil
}

// collectFiles gathers every file under dir matching the extension list.
// There is no depth bound here (terminal directories are expected to be
// shallow), so symlinked directories are deduplicated by their resolved
// path: a link cycle inside a dataset directory must not re-collect the
// same physical file under ever-longer loop paths.
func (w *Walker) collectFiles(dir string) []RawFile {
	var files []RawFile
	visited := map[string]bool{path.Clean(dir): true}
	queue := []string{dir}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		entries, err := w.FS.ReadDir(cur)
		if err != nil {
			if w.Verbose {
				log.Printf("discover: skip unreadable %s: %v", cur, err)
			}
			continue
		}
		for _, fi := range entries {
			child := path.Join(cur, fi.Name())
			if canon, isDir := w.dirIdentity(child, fi); isDir {
				if !visited[canon] {
					visited[canon] = true
					queue = append(queue, child)
				}
				continue
			}
			for _, ext := range w.Extensions {
				if strings.HasSuffix(fi.Name(), ext) {
					files = append(files, RawFile{
						Path:      child,
						CreatedAt: w.creationTime(child, fi.ModTime()),
					})
					break
				}
			}
		}
	}
	return files
}

// dirIdentity reports whether the entry is a directory (following symlinks)
// and, if so, its canonical path for cycle detection: the cleaned path for
// a plain directory, the resolved link target for a symlink.
func (w *Walker) dirIdentity(p string, fi os.FileInfo) (string, bool) {
	if fi.Mode()&os.ModeSymlink == 0 {
		return path.Clean(p), fi.IsDir()
	}
	target, err := w.FS.Readlink(p)
	if err != nil {
		return "", false
	}
	if !path.IsAbs(target) {
		target = path.Join(path.Dir(p), target)
	}
	if st, err := w.FS.Stat(p); err != nil || !st.IsDir() {
		return "", false
	}
	return path.Clean(target), true
}

// isDir reports whether the entry is a directory, following symlinks: a link
// to a directory counts, so linked trees are traversed (bounded by depth).
func (w *Walker) isDir(p string, direct bool) bool {
	if direct {
		return true
	}
	fi, err := w.FS.Stat(p)
	return err == nil && fi.IsDir()
}

// creationTime resolves a file's creation timestamp: the filesystem birth
// time where the platform reports one, else the directory entry's mtime,
// else now.
func (w *Walker) creationTime(p string, mtime time.Time) time.Time {
	if bt, ok := birthTime(p); ok {
		return bt
	}
	if !mtime.IsZero() {
		return mtime
	}
	return time.Now()
}
