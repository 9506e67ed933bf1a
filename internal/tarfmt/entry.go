// Package tarfmt computes the exact byte layout of a POSIX pax/ustar
// archive entry and emits its header bytes, per the format contract in
// spec.md §4.A. Layout must be computable from metadata alone — no
// payload byte is ever consulted.
package tarfmt

import "golang.org/x/xerrors"

// Kind is the entry type this profile supports. Anything else is a fatal
// input error (D4).
type Kind uint8

const (
	Regular Kind = iota
	Directory
	Symlink
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Stat is the host-independent metadata an entry needs to compute its
// footprint and emit its header. It deliberately does not reinterpret a
// raw host stat struct (see DESIGN.md, §9 Design Note): every field is
// named and sized explicitly so it survives the wire codec unchanged.
type Stat struct {
	Kind  Kind
	Mode  uint32 // low 12 bits significant
	Uid   uint32
	Gid   uint32
	Size  uint64 // regular files only; 0 for directory/symlink
	Mtime int64  // seconds
}

// Entry is one archive member: its metadata, its name, and (for symlinks)
// its target. Offset is the byte position this entry begins at in the
// final archive, assigned by the offset planner (§4.D).
type Entry struct {
	Offset   uint64
	Stat     Stat
	Filename string // D1: directories end in "/"; regular/symlink do not
	Linkname string // symlink target; empty otherwise
}

// maxUstarSize is the largest size ustar's 11-digit octal size field can
// hold without pax, 2^33-1 per D5.
const maxUstarSize = 1<<33 - 1

const blockSize = 512

// roundUp512 rounds n up to the next multiple of 512.
func roundUp512(n uint64) uint64 {
	return (n + blockSize - 1) &^ (blockSize - 1)
}

// needsPax reports whether a pax extended header must precede the ustar
// header for this entry (D5).
func (e *Entry) needsPax() bool {
	if len(e.Filename) > 100 {
		return true
	}
	if len(e.Linkname) > 100 {
		return true
	}
	if e.Stat.Kind == Regular && e.Stat.Size > maxUstarSize {
		return true
	}
	return false
}

// Footprint returns the total number of archive bytes this entry
// contributes: an optional pax block, the 512-byte ustar header, and
// (for regular files) the payload padded to the next 512-byte boundary.
// It depends only on Stat, len(Filename), and len(Linkname) (D2).
func (e *Entry) Footprint() uint64 {
	var paxBlock uint64
	if e.needsPax() {
		paxBlock = roundUp512(blockSize + uint64(len(e.paxPayload())))
	}
	var payload uint64
	if e.Stat.Kind == Regular {
		payload = roundUp512(e.Stat.Size)
	}
	return paxBlock + blockSize + payload
}

// validate enforces D4 and the name conventions in D1.
func (e *Entry) validate() error {
	switch e.Stat.Kind {
	case Regular, Directory, Symlink:
	default:
		return xerrors.Errorf("%s: unsupported entry kind %d", e.Filename, e.Stat.Kind)
	}
	if e.Stat.Kind == Directory && (e.Filename == "" || e.Filename[len(e.Filename)-1] != '/') {
		return xerrors.Errorf("%s: directory entry must end in '/'", e.Filename)
	}
	if e.Stat.Kind != Directory && len(e.Filename) > 0 && e.Filename[len(e.Filename)-1] == '/' {
		return xerrors.Errorf("%s: non-directory entry must not end in '/'", e.Filename)
	}
	return nil
}
