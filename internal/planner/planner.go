// Package planner implements the offset planner (spec.md §4.D): a
// single-threaded running-offset accumulator that turns a path source
// into entry descriptors with assigned offsets, and writes the index
// side-file alongside.
package planner

import (
	"strings"
	"time"

	"github.com/distr1/ptar/internal/pathsource"
	"github.com/distr1/ptar/internal/tarfmt"
	"golang.org/x/xerrors"
)

// Planner is the single-threaded offset accumulator described in §4.D.
// It is not safe for concurrent use; only the coordinator drives it.
type Planner struct {
	src    pathsource.Source
	oracle MetadataOracle
	idx    *indexFile

	offset uint64 // running_offset
	done   bool
}

// New returns a Planner reading paths from src, resolving metadata
// through oracle, and writing the index side-file next to archivePath.
func New(src pathsource.Source, oracle MetadataOracle, archivePath string) (*Planner, error) {
	idx, err := newIndexFile(archivePath)
	if err != nil {
		return nil, err
	}
	return &Planner{src: src, oracle: oracle, idx: idx}, nil
}

// Next implements one iteration of §4.D's loop: stat the next path,
// build its descriptor at the current running offset, append its index
// line, and advance the running offset by its footprint. It returns
// (nil, nil) once the path source is exhausted — callers must then call
// Finalize to obtain the synthetic index-file descriptor.
func (p *Planner) Next() (*tarfmt.Entry, error) {
	if p.done {
		return nil, nil
	}

	path, err := p.src.Next()
	if err != nil {
		return nil, xerrors.Errorf("reading next path: %w", err)
	}
	if path == "" {
		p.done = true
		return nil, nil
	}

	st, err := p.oracle.Lstat(path)
	if err != nil {
		return nil, err
	}

	name := path
	var linkname string
	switch st.Kind {
	case tarfmt.Directory:
		name = strings.TrimSuffix(name, "/") + "/" // D1
	case tarfmt.Symlink:
		linkname, err = p.oracle.Readlink(path)
		if err != nil {
			return nil, err
		}
	}

	e := &tarfmt.Entry{
		Offset:   p.offset,
		Stat:     st,
		Filename: name,
		Linkname: linkname,
	}

	if err := p.idx.appendLine(p.offset, path); err != nil {
		return nil, err
	}

	p.offset += e.Footprint()
	return e, nil
}

// Offset returns the current running offset (the offset the next
// descriptor, or the final synthetic index descriptor, will receive).
func (p *Planner) Offset() uint64 {
	return p.offset
}

// Finalize closes the index side-file (appending its own self-describing
// line first) and returns the synthetic descriptor for the index itself,
// which the coordinator writes directly rather than dispatching to a
// worker (§4.D, §4.E "Drain and shutdown").
func (p *Planner) Finalize() (*tarfmt.Entry, error) {
	path, size, err := p.idx.finalize(p.offset)
	if err != nil {
		return nil, err
	}
	e := &tarfmt.Entry{
		Offset: p.offset,
		Stat: tarfmt.Stat{
			Kind:  tarfmt.Regular,
			Mode:  0644,
			Size:  size,
			Mtime: time.Now().Unix(),
		},
		Filename: path,
	}
	p.offset += e.Footprint()
	return e, nil
}

// Abort discards the in-progress index file without publishing it.
func (p *Planner) Abort() {
	p.idx.cleanup()
}
