package tarfmt

import (
	"strings"
	"testing"
)

type fakeNames struct{}

func (fakeNames) UserName(uid uint32) (string, error)  { return "root", nil }
func (fakeNames) GroupName(gid uint32) (string, error) { return "root", nil }

func TestEmitHeaderRegularLayout(t *testing.T) {
	// S1: a single regular file with no pax triggers.
	e := &Entry{
		Stat:     Stat{Kind: Regular, Mode: 0644, Uid: 0, Gid: 0, Size: 5, Mtime: 1500000000},
		Filename: "hello.txt",
	}
	header, err := e.EmitHeader(fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	if len(header) != 512 {
		t.Fatalf("len(header) = %d, want 512 (no pax block expected)", len(header))
	}
	if !strings.HasPrefix(string(header[0:100]), "hello.txt\x00") {
		t.Errorf("name field = %q, want to start with \"hello.txt\\x00\"", header[0:9+1])
	}
	if header[156] != typeRegular {
		t.Errorf("typeflag = %q, want '0'", header[156])
	}
	if got, want := string(header[257:263]), "ustar\x00"; got != want {
		t.Errorf("magic = %q, want %q", got, want)
	}
	verifyChecksum(t, header)
}

func TestEmitHeaderSymlink(t *testing.T) {
	// S2: typeflag '2', linkname populated, size field all-zero octal.
	e := &Entry{
		Stat:     Stat{Kind: Symlink, Mode: 0777, Mtime: 1500000000},
		Filename: "link",
		Linkname: "target",
	}
	header, err := e.EmitHeader(fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	if header[156] != typeSymlink {
		t.Errorf("typeflag = %q, want '2'", header[156])
	}
	if !strings.HasPrefix(string(header[157:257]), "target\x00") {
		t.Errorf("linkname field does not start with \"target\\x00\"")
	}
	wantZeroSize := "00000000000\x00"
	if got := string(header[124:136]); got != wantZeroSize {
		t.Errorf("size field = %q, want %q", got, wantZeroSize)
	}
	verifyChecksum(t, header)
}

func TestEmitHeaderDirectory(t *testing.T) {
	// S3: directory entry, typeflag '5', name ends in '/'.
	e := &Entry{
		Stat:     Stat{Kind: Directory, Mode: 0755, Mtime: 1500000000},
		Filename: "dir/",
	}
	header, err := e.EmitHeader(fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	if header[156] != typeDirectory {
		t.Errorf("typeflag = %q, want '5'", header[156])
	}
	if !strings.HasPrefix(string(header[0:100]), "dir/\x00") {
		t.Errorf("name field does not start with \"dir/\\x00\"")
	}
	verifyChecksum(t, header)
}

func TestEmitHeaderLongNameUsesPax(t *testing.T) {
	// S4: name > 100 bytes: a pax header block precedes the ustar block,
	// and the ustar name field carries only the first 100 bytes.
	name := strings.Repeat("a", 150)
	e := &Entry{
		Stat:     Stat{Kind: Regular, Mode: 0644, Mtime: 1500000000, Size: 0},
		Filename: name,
	}
	header, err := e.EmitHeader(fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	wantRecord := e.paxPayload()
	paxSectionLen := 512 + int(roundUp512(uint64(len(wantRecord))))
	wantLen := paxSectionLen + 512
	if len(header) != wantLen {
		t.Fatalf("len(header) = %d, want %d (pax header + padded payload + ustar header)", len(header), wantLen)
	}
	if header[156] != typePax {
		t.Errorf("first block typeflag = %q, want 'x'", header[156])
	}
	ustar := header[paxSectionLen : paxSectionLen+512]
	if ustar[156] != typeRegular {
		t.Errorf("second block typeflag = %q, want '0'", ustar[156])
	}
	if !strings.HasPrefix(string(ustar[0:100]), name[:100]) {
		t.Errorf("ustar name field does not start with the first 100 bytes of the real name")
	}
	paxPayload := string(header[512 : 512+len(wantRecord)])
	if paxPayload != wantRecord {
		t.Errorf("pax payload = %q, want %q", paxPayload, wantRecord)
	}
	verifyChecksum(t, header[0:512])
	verifyChecksum(t, ustar)
}

func TestPutOctalTruncatesAndNulTerminates(t *testing.T) {
	dst := make([]byte, 8)
	putOctal(dst, 0755, 7)
	if got, want := string(dst[:7]), "0000755"; got != want {
		t.Errorf("putOctal = %q, want %q", got, want)
	}
	if dst[7] != 0 {
		t.Errorf("last byte = %d, want NUL", dst[7])
	}

	// A value wider than the field keeps only its low-order digits.
	putOctal(dst, 0123456701, 7)
	if got, want := string(dst[:7]), "3456701"; got != want {
		t.Errorf("putOctal(0123456701) = %q, want %q", got, want)
	}
	if dst[7] != 0 {
		t.Errorf("last byte after truncation = %d, want NUL", dst[7])
	}
}

// verifyChecksum recomputes the header checksum the way a reader would:
// re-sum the 512 bytes with the chksum field blanked to spaces, and
// compare against the stored field.
func verifyChecksum(t *testing.T, block []byte) {
	t.Helper()
	if len(block) != 512 {
		t.Fatalf("verifyChecksum: block is %d bytes, want 512", len(block))
	}
	stored := make([]byte, 512)
	copy(stored, block)
	for i := 148; i < 156; i++ {
		stored[i] = ' '
	}
	want := checksum(stored)
	gotField := block[148:156]
	wantField := formatChecksum(want)
	if string(gotField) != string(wantField) {
		t.Errorf("chksum field = %q, want %q", gotField, wantField)
	}
}
