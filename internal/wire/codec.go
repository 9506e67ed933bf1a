// Package wire serializes and deserializes entry descriptors for
// transport between the coordinator and a worker rank (spec.md §4.B).
// The layout is a fixed concatenation of little-endian fields; it is not
// a place to reach for a general-purpose serialization library (see
// DESIGN.md) because the spec fixes the exact bytes.
package wire

import (
	"encoding/binary"

	"github.com/distr1/ptar/internal/tarfmt"
	"golang.org/x/xerrors"
)

// statSize is the on-wire size of the stat struct: kind(1) + mode(4) +
// uid(4) + gid(4) + size(8) + mtime(8), all little-endian, no host
// padding (spec.md §9: an explicit field-by-field record, not a raw
// struct reinterpret).
const statSize = 1 + 4 + 4 + 4 + 8 + 8

// Serialize encodes one entry descriptor as:
//
//	u64 total_record_length
//	<stat-struct-bytes>
//	u64 offset
//	u64 filename_len
//	bytes[filename_len]
//	u64 linkname_len
//	bytes[linkname_len]
func Serialize(e *tarfmt.Entry) []byte {
	body := make([]byte, 0, statSize+8+8+len(e.Filename)+8+len(e.Linkname))
	body = appendStat(body, e.Stat)
	body = appendU64(body, e.Offset)
	body = appendU64(body, uint64(len(e.Filename)))
	body = append(body, e.Filename...)
	body = appendU64(body, uint64(len(e.Linkname)))
	body = append(body, e.Linkname...)

	total := uint64(8 + len(body))
	out := make([]byte, 0, total)
	out = appendU64(out, total)
	out = append(out, body...)
	return out
}

// Terminator serializes the sole sentinel that tells a worker no further
// work will arrive: a descriptor with filename_len == 0.
func Terminator() []byte {
	return Serialize(&tarfmt.Entry{})
}

// IsTerminator reports whether e is a terminator descriptor.
func IsTerminator(e *tarfmt.Entry) bool {
	return len(e.Filename) == 0
}

// Deserialize consumes exactly one descriptor record from the front of
// buf and returns it along with the number of bytes consumed. It asserts
// that the post-parse cursor matches total_record_length (B1).
func Deserialize(buf []byte) (*tarfmt.Entry, int, error) {
	if len(buf) < 8 {
		return nil, 0, xerrors.New("wire: buffer too short for record length")
	}
	total := binary.LittleEndian.Uint64(buf[0:8])
	if uint64(len(buf)) < total {
		return nil, 0, xerrors.Errorf("wire: buffer has %d bytes, record declares %d", len(buf), total)
	}

	cursor := 8
	stat, n, err := readStat(buf[cursor:])
	if err != nil {
		return nil, 0, err
	}
	cursor += n

	offset, n, err := readU64(buf[cursor:])
	if err != nil {
		return nil, 0, err
	}
	cursor += n

	filename, n, err := readBytes(buf[cursor:])
	if err != nil {
		return nil, 0, err
	}
	cursor += n

	// The linkname length prefix is always present in the framing; the
	// bytes themselves are simply absent (length 0) when there is no link.
	linkbytes, n, err := readBytes(buf[cursor:])
	if err != nil {
		return nil, 0, err
	}
	linkname := string(linkbytes)
	cursor += n

	if uint64(cursor) != total {
		return nil, 0, xerrors.Errorf("wire: B1 violation: parsed %d bytes, total_record_length said %d", cursor, total)
	}

	return &tarfmt.Entry{
		Offset:   offset,
		Stat:     stat,
		Filename: string(filename),
		Linkname: linkname,
	}, cursor, nil
}

// DeserializeBatch parses descriptors out of buf until it is exhausted or
// a terminator is encountered, per §4.B ("the receiver parses until it has
// consumed the byte count the transport reported, stopping immediately on
// the terminator").
func DeserializeBatch(buf []byte) (entries []*tarfmt.Entry, sawTerminator bool, err error) {
	for len(buf) > 0 {
		e, n, err := Deserialize(buf)
		if err != nil {
			return entries, sawTerminator, err
		}
		entries = append(entries, e)
		buf = buf[n:]
		if IsTerminator(e) {
			return entries, true, nil
		}
	}
	return entries, false, nil
}

// SerializeBatch concatenates descriptor records with no framing between
// them, as §4.B specifies for a job batch.
func SerializeBatch(entries []*tarfmt.Entry) []byte {
	var out []byte
	for _, e := range entries {
		out = append(out, Serialize(e)...)
	}
	return out
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func readU64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, xerrors.New("wire: short read for u64 field")
	}
	return binary.LittleEndian.Uint64(buf[0:8]), 8, nil
}

func readBytes(buf []byte) ([]byte, int, error) {
	n, consumed, err := readU64(buf)
	if err != nil {
		return nil, 0, err
	}
	buf = buf[consumed:]
	if uint64(len(buf)) < n {
		return nil, 0, xerrors.Errorf("wire: short read for %d-byte field", n)
	}
	return buf[:n], consumed + int(n), nil
}

func appendStat(dst []byte, s tarfmt.Stat) []byte {
	dst = append(dst, byte(s.Kind))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], s.Mode)
	dst = append(dst, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], s.Uid)
	dst = append(dst, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], s.Gid)
	dst = append(dst, u32[:]...)
	dst = appendU64(dst, s.Size)
	dst = appendU64(dst, uint64(s.Mtime))
	return dst
}

func readStat(buf []byte) (tarfmt.Stat, int, error) {
	if len(buf) < statSize {
		return tarfmt.Stat{}, 0, xerrors.New("wire: short read for stat struct")
	}
	s := tarfmt.Stat{
		Kind:  tarfmt.Kind(buf[0]),
		Mode:  binary.LittleEndian.Uint32(buf[1:5]),
		Uid:   binary.LittleEndian.Uint32(buf[5:9]),
		Gid:   binary.LittleEndian.Uint32(buf[9:13]),
		Size:  binary.LittleEndian.Uint64(buf[13:21]),
		Mtime: int64(binary.LittleEndian.Uint64(buf[21:29])),
	}
	return s, statSize, nil
}
