// Package worker implements the worker executor (spec.md §4.F): the
// per-rank loop that receives job batches, seeks the shared output to
// each descriptor's assigned offset, writes its header and payload, and
// acknowledges batch completion.
package worker

import (
	"os"

	"github.com/distr1/ptar/internal/sharedfile"
	"github.com/distr1/ptar/internal/tarfmt"
	"golang.org/x/xerrors"
)

// WriteEntry writes one descriptor's header and (for regular files)
// payload to w at its assigned offset, returning the total number of
// archive bytes written. It is shared by the worker loop and by the
// coordinator, which writes the final index-file descriptor directly
// (spec.md §4.D/§4.E) rather than dispatching it.
func WriteEntry(w *sharedfile.Writer, e *tarfmt.Entry, names tarfmt.NameResolver) (uint64, error) {
	header, err := e.EmitHeader(names)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", e.Filename, err)
	}

	if e.Stat.Kind != tarfmt.Regular {
		return w.WriteAt(e.Offset, header, nil, 0)
	}

	f, err := os.Open(e.Filename)
	if err != nil {
		return 0, xerrors.Errorf("opening %s: %w", e.Filename, err)
	}
	defer f.Close()

	return w.WriteAt(e.Offset, header, f, e.Stat.Size)
}
