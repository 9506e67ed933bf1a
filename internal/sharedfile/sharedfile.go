// Package sharedfile implements the shared-file discipline of spec.md
// §4.G: the coordinator-only create/truncate fence, per-rank buffered
// writers with their own tracked file position (never queried from the
// OS, per invariant F2), and the end-of-archive trailer.
package sharedfile

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/xerrors"
)

const blockSize = 512

// DefaultBufferSize is the suggested per-rank write buffer size from
// spec.md §4.F/§4.G. It is configurable (see cmd/ptar's -buffer_size
// flag) — 512 MiB per rank is frequently impractical, so the CLI default
// is much smaller; this constant documents the spec's suggested value.
const DefaultBufferSize = 512 << 20

// CreateTruncate opens path for the coordinator's create/truncate phase:
// O_WRONLY|O_TRUNC|O_CREAT, exactly once, before any worker opens it
// (§3 "Lifecycle"). Callers must synchronize this against worker opens
// with a barrier (see internal/transport.Barrier).
func CreateTruncate(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return nil, xerrors.Errorf("creating shared output %s: %w", path, err)
	}
	return f, nil
}

// Writer is one rank's view of the shared output file: its own file
// descriptor, a large buffered writer, and the locally tracked write
// position. O_RDWR is deliberately avoided (it induces read-on-seek
// prefetch that corrupts the buffered write pipeline, per §4.G).
type Writer struct {
	f       *os.File
	bw      *bufio.Writer
	pos     uint64
	bufSize int
}

// OpenWriter opens path O_WRONLY (it must already exist — the
// coordinator's CreateTruncate has already run and the open/create
// barrier has already released) and wraps it with a bufSize write
// buffer.
func OpenWriter(path string, bufSize int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, xerrors.Errorf("opening shared output %s: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, bufSize), bufSize: bufSize}, nil
}

// seekTo seeks the underlying file only if the locally tracked position
// differs from offset (F2: the position is never queried from the OS,
// since that forces an implicit flush). Any buffered bytes are flushed
// first so the seek and the buffer agree on position.
func (w *Writer) seekTo(offset uint64) error {
	if w.pos == offset {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return xerrors.Errorf("flushing before seek: %w", err)
	}
	if _, err := w.f.Seek(int64(offset), io.SeekStart); err != nil {
		return xerrors.Errorf("seeking to %d: %w", offset, err)
	}
	w.pos = offset
	return nil
}

// WriteAt writes header at offset, then (if payload is non-nil) copies
// exactly payloadSize bytes from payload and pads to the next 512-byte
// boundary. It returns the total number of archive bytes written
// (header + payload + padding), and advances the local position tracker
// by that amount.
func (w *Writer) WriteAt(offset uint64, header []byte, payload io.Reader, payloadSize uint64) (uint64, error) {
	if err := w.seekTo(offset); err != nil {
		return 0, err
	}
	n, err := w.bw.Write(header)
	if err != nil {
		return 0, xerrors.Errorf("writing header: %w", err)
	}
	total := uint64(n)

	if payload != nil {
		copied, err := io.CopyN(w.bw, payload, int64(payloadSize))
		if err != nil {
			return 0, xerrors.Errorf("copying payload: %w", err)
		}
		total += uint64(copied)

		pad := roundUp512(payloadSize) - payloadSize
		if pad > 0 {
			if _, err := w.bw.Write(make([]byte, pad)); err != nil {
				return 0, xerrors.Errorf("writing padding: %w", err)
			}
			total += pad
		}
	}

	w.pos += total
	return total, nil
}

// WriteTrailer writes the two 512-byte zero blocks that mark the end of
// the archive, at the given offset (the running offset after the last
// entry).
func (w *Writer) WriteTrailer(offset uint64) error {
	if err := w.seekTo(offset); err != nil {
		return err
	}
	n, err := w.bw.Write(make([]byte, 2*blockSize))
	if err != nil {
		return xerrors.Errorf("writing end-of-archive trailer: %w", err)
	}
	w.pos += uint64(n)
	return nil
}

// Flush flushes the buffered writer without closing the file.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return xerrors.Errorf("flushing on close: %w", err)
	}
	return w.f.Close()
}

func roundUp512(n uint64) uint64 {
	return (n + blockSize - 1) &^ (blockSize - 1)
}
