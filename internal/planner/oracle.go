package planner

import (
	"os"
	"syscall"

	"github.com/distr1/ptar/internal/tarfmt"
	"golang.org/x/xerrors"
)

// MetadataOracle is the external "file-metadata oracle" spec.md §1
// describes: it supplies per-path stat results and, for symbolic links,
// link targets. The core only ever calls it through this interface.
type MetadataOracle interface {
	Lstat(path string) (tarfmt.Stat, error)
	Readlink(path string) (string, error)
}

// OSOracle implements MetadataOracle against the local filesystem, using
// lstat semantics throughout (never following symlinks), per §4.D step 2.
type OSOracle struct{}

// Lstat implements MetadataOracle.
func (OSOracle) Lstat(path string) (tarfmt.Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return tarfmt.Stat{}, xerrors.Errorf("lstat %s: %w", path, err)
	}
	var kind tarfmt.Kind
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = tarfmt.Symlink
	case fi.IsDir():
		kind = tarfmt.Directory
	case fi.Mode().IsRegular():
		kind = tarfmt.Regular
	default:
		return tarfmt.Stat{}, xerrors.Errorf("%s: unsupported file type %v", path, fi.Mode())
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return tarfmt.Stat{}, xerrors.Errorf("%s: no platform stat information available", path)
	}

	size := uint64(0)
	if kind == tarfmt.Regular {
		size = uint64(fi.Size())
	}

	return tarfmt.Stat{
		Kind:  kind,
		Mode:  uint32(st.Mode & 07777), // low 12 bits: perm + setuid/setgid/sticky
		Uid:   st.Uid,
		Gid:   st.Gid,
		Size:  size,
		Mtime: fi.ModTime().Unix(),
	}, nil
}

// Readlink implements MetadataOracle.
func (OSOracle) Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", xerrors.Errorf("readlink %s: %w", path, err)
	}
	return target, nil
}
