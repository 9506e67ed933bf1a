package pathsource

import (
	"os"
	"path/filepath"

	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// Walker recursively enumerates paths rooted at one starting path,
// depth-first, per spec.md §4.C. It uses lstat semantics throughout (a
// symlink is never followed into its target directory), and sorts each
// directory's children before descending so repeated runs over an
// unchanged tree produce the same path order (needed for D3/G1
// determinism). "." and ".." are never produced: os.ReadDir never
// returns them.
type Walker struct {
	stack []string // LIFO: next path to visit is stack[len(stack)-1]
}

// NewWalker returns a Walker rooted at root. root itself is yielded
// first, then (if it is a directory) its descendants.
func NewWalker(root string) *Walker {
	return &Walker{stack: []string{root}}
}

// Next implements Source.
func (w *Walker) Next() (string, error) {
	if len(w.stack) == 0 {
		return "", nil
	}
	path := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	info, err := os.Lstat(path)
	if err != nil {
		return "", xerrors.Errorf("%s: %w", path, err)
	}
	if info.IsDir() {
		children, err := os.ReadDir(path)
		if err != nil {
			return "", xerrors.Errorf("%s: %w", path, err)
		}
		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Name()
		}
		slices.Sort(names)
		// Push in reverse so the alphabetically-first child is popped
		// (visited) first.
		for i := len(names) - 1; i >= 0; i-- {
			w.stack = append(w.stack, filepath.Join(path, names[i]))
		}
	}
	return path, nil
}
