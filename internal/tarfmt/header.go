package tarfmt

import (
	"io"
	"strconv"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// NameResolver maps a uid/gid to the user/group name the ustar header's
// uname/gname fields carry. Implementations should cache process-locally
// (see internal/identity); a failed lookup is a fatal metadata error
// per spec.md §7.
type NameResolver interface {
	UserName(uid uint32) (string, error)
	GroupName(gid uint32) (string, error)
}

const (
	typeRegular   = '0'
	typeSymlink   = '2'
	typeDirectory = '5'
	typePax       = 'x'
)

func typeflagFor(k Kind) (byte, error) {
	switch k {
	case Regular:
		return typeRegular, nil
	case Symlink:
		return typeSymlink, nil
	case Directory:
		return typeDirectory, nil
	default:
		return 0, xerrors.Errorf("unsupported entry kind %d", k)
	}
}

// EmitHeader returns the byte sequence for this entry: the pax extended
// header block (if D5 triggers it) followed by the ustar header block.
// Its length always equals Footprint() minus the payload bytes.
func (e *Entry) EmitHeader(names NameResolver) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	typeflag, err := typeflagFor(e.Stat.Kind)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", e.Filename, err)
	}

	uname, err := names.UserName(e.Stat.Uid)
	if err != nil {
		return nil, xerrors.Errorf("%s: resolving uid %d: %w", e.Filename, e.Stat.Uid, err)
	}
	gname, err := names.GroupName(e.Stat.Gid)
	if err != nil {
		return nil, xerrors.Errorf("%s: resolving gid %d: %w", e.Filename, e.Stat.Gid, err)
	}

	var buf writerseeker.WriterSeeker

	if e.needsPax() {
		payload := e.paxPayload()
		pax := &Entry{
			Stat: Stat{
				Kind:  Regular,
				Mode:  0644,
				Mtime: e.Stat.Mtime,
				Size:  uint64(len(payload)),
			},
			Filename: paxHeaderName(e.Filename),
		}
		if err := writeUstarBlock(&buf, pax, typePax, nil, true /* zeroOwner */); err != nil {
			return nil, err
		}
		if _, err := buf.Write([]byte(payload)); err != nil {
			return nil, err
		}
		if pad := roundUp512(uint64(len(payload))) - uint64(len(payload)); pad > 0 {
			if _, err := buf.Write(make([]byte, pad)); err != nil {
				return nil, err
			}
		}
	}

	if err := writeUstarBlock(&buf, e, typeflag, namesOrZero{uname, gname}, false); err != nil {
		return nil, err
	}

	return io.ReadAll(buf.BytesReader())
}

// namesOrZero hands back names already resolved once by EmitHeader,
// avoiding a second lookup when writing the real (non-pax) header block.
type namesOrZero struct {
	uname, gname string
}

func (n namesOrZero) UserName(uint32) (string, error)  { return n.uname, nil }
func (n namesOrZero) GroupName(uint32) (string, error) { return n.gname, nil }

// writeUstarBlock writes one 512-byte ustar header for e at the buffer's
// current position, per the field table in spec.md §4.A. If zeroOwner is
// set (used for the pax extended-header block itself), uid/gid/uname/
// gname are written as zero/empty and names may be nil.
func writeUstarBlock(buf *writerseeker.WriterSeeker, e *Entry, typeflag byte, names NameResolver, zeroOwner bool) error {
	block := make([]byte, blockSize)

	name := e.Filename
	if len(name) > 100 {
		name = name[:100]
	}
	copy(block[0:100], name)

	putOctal(block[100:108], uint64(e.Stat.Mode&07777), 7)

	if zeroOwner {
		putOctal(block[108:116], 0, 7)
		putOctal(block[116:124], 0, 7)
	} else {
		putOctal(block[108:116], uint64(e.Stat.Uid), 7)
		putOctal(block[116:124], uint64(e.Stat.Gid), 7)
	}

	var size uint64
	if e.Stat.Kind == Regular && e.Stat.Size <= maxUstarSize {
		size = e.Stat.Size
	}
	putOctal(block[124:136], size, 11)

	putOctal(block[136:148], uint64(e.Stat.Mtime), 11)

	for i := 148; i < 156; i++ {
		block[i] = ' '
	}

	block[156] = typeflag

	linkname := e.Linkname
	if len(linkname) > 100 {
		linkname = linkname[:100]
	}
	copy(block[157:257], linkname)

	copy(block[257:263], "ustar\x00")
	copy(block[263:265], "00")

	if !zeroOwner {
		uname, err := names.UserName(e.Stat.Uid)
		if err != nil {
			return err
		}
		gname, err := names.GroupName(e.Stat.Gid)
		if err != nil {
			return err
		}
		copy(block[265:297], uname)
		copy(block[297:329], gname)
	}

	putOctal(block[329:337], 0, 7) // devmajor
	putOctal(block[337:345], 0, 7) // devminor
	// prefix (345:500) and pad (500:512) stay zero: this profile always
	// uses pax for names that don't fit, never the ustar prefix field.

	sum := checksum(block)
	copy(block[148:156], formatChecksum(sum))

	_, err := buf.Write(block)
	return err
}

// checksum sums all 512 header bytes as unsigned 8-bit integers, with the
// chksum field treated as eight ASCII spaces (already written as such by
// the caller before this is invoked).
func checksum(block []byte) int {
	sum := 0
	for _, b := range block {
		sum += int(b)
	}
	return sum
}

// formatChecksum renders sum as a 6-digit zero-padded octal number
// followed by NUL and a space — 8 bytes total, matching GNU tar's
// chksum terminator convention ("%06o\0 "). No separate "0" is
// prepended: the leading digit is a padding "0" only for sums below
// 0100000 octal (32768).
func formatChecksum(sum int) []byte {
	return []byte(pad6Octal(sum) + "\x00 ")
}

func pad6Octal(n int) string {
	s := strconv.FormatInt(int64(n), 8)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// putOctal writes n as a zero-padded, NUL-terminated octal field into
// dst (len(dst) bytes wide total, final byte always NUL).
func putOctal(dst []byte, n uint64, digits int) {
	s := strconv.FormatUint(n, 8)
	for len(s) < digits {
		s = "0" + s
	}
	if len(s) > digits {
		s = s[len(s)-digits:]
	}
	copy(dst, s)
	dst[len(dst)-1] = 0
}
