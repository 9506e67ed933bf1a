package sharedfile

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// sparseFriendly is a best-effort allowlist of filesystem magic numbers
// (as returned by statfs) known to support efficient sparse writes at
// arbitrary offsets, per the §9 Design Note: workers seek far ahead of
// the current end-of-file, and a filesystem that zero-fills on seek
// instead of punching a hole will see throughput collapse.
var sparseFriendly = map[int64]string{
	0xEF53:     "ext4",
	0x58465342: "xfs",
	0x9123683E: "btrfs",
	0x01021994: "tmpfs",
	0x0BD00BD0: "lustre",
}

// CheckSparseFriendly statfs(2)s the directory containing path and
// returns a human-readable warning if its filesystem is not on the
// sparse-friendly allowlist. It never fails the run: detection here is
// necessarily best-effort (the allowlist is not exhaustive), so an
// unrecognized filesystem only produces a warning, not an error.
func CheckSparseFriendly(path string) (warning string, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
		return "", err
	}
	if name, ok := sparseFriendly[int64(st.Type)]; ok {
		_ = name
		return "", nil
	}
	return "output path's filesystem (magic " +
		formatHex(int64(st.Type)) +
		") is not on the known sparse-write-friendly allowlist; " +
		"throughput may collapse if it zero-fills on seek instead of " +
		"punching holes", nil
}

func formatHex(n int64) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	u := uint64(n)
	for u > 0 {
		i--
		buf[i] = hex[u&0xf]
		u >>= 4
	}
	return "0x" + string(buf[i:])
}
