package planner

import (
	"fmt"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// indexFile is the "<archive>.idx" side file: one line per entry,
// "<offset> <path>\n", owned exclusively by the coordinator (spec.md
// §5 "Shared-resource policy"). It is built atomically with renameio so
// a reader never observes a partially written index, the same finalize
// pattern cmd/distri/initrd.go uses for its generated images.
type indexFile struct {
	f       *renameio.PendingFile
	path    string
	written uint64
}

func newIndexFile(archivePath string) (*indexFile, error) {
	path := archivePath + ".idx"
	f, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return nil, xerrors.Errorf("creating index side-file %s: %w", path, err)
	}
	return &indexFile{f: f, path: path}, nil
}

// appendLine writes one "<offset> <path>\n" record.
func (idx *indexFile) appendLine(offset uint64, path string) error {
	line := fmt.Sprintf("%d %s\n", offset, path)
	n, err := idx.f.Write([]byte(line))
	idx.written += uint64(n)
	if err != nil {
		return xerrors.Errorf("writing index line for %s: %w", path, err)
	}
	return nil
}

// finalize appends the index's own self-describing line (it appears as
// the final entry inside the resulting archive, §2/§4.D), commits the
// file atomically, and returns its path and final size.
func (idx *indexFile) finalize(selfOffset uint64) (path string, size uint64, err error) {
	if err := idx.appendLine(selfOffset, idx.path); err != nil {
		return "", 0, err
	}
	if err := idx.f.CloseAtomicallyReplace(); err != nil {
		return "", 0, xerrors.Errorf("finalizing index side-file: %w", err)
	}
	return idx.path, idx.written, nil
}

// cleanup discards the in-progress index file without publishing it,
// used on abort.
func (idx *indexFile) cleanup() {
	idx.f.Cleanup()
}
