package tarfmt

import "testing"

func TestFootprintRegular(t *testing.T) {
	e := &Entry{
		Stat:     Stat{Kind: Regular, Mode: 0644, Size: 5, Mtime: 1500000000},
		Filename: "hello.txt",
	}
	// S1: 512 (header) + 512 (5 bytes padded to a block). No pax.
	if got, want := e.Footprint(), uint64(512+512); got != want {
		t.Errorf("Footprint() = %d, want %d", got, want)
	}
}

func TestFootprintSymlink(t *testing.T) {
	e := &Entry{
		Stat:     Stat{Kind: Symlink, Mode: 0777},
		Filename: "link",
		Linkname: "target",
	}
	// S2: header only, no payload.
	if got, want := e.Footprint(), uint64(512); got != want {
		t.Errorf("Footprint() = %d, want %d", got, want)
	}
}

func TestFootprintDirectory(t *testing.T) {
	e := &Entry{
		Stat:     Stat{Kind: Directory, Mode: 0755},
		Filename: "dir/",
	}
	if got, want := e.Footprint(), uint64(512); got != want {
		t.Errorf("Footprint() = %d, want %d", got, want)
	}
}

func TestFootprintLongNameTriggersPax(t *testing.T) {
	// S4: a 101-byte path must pull in a pax block ahead of the ustar header.
	name := make([]byte, 101)
	for i := range name {
		name[i] = 'a'
	}
	e := &Entry{
		Stat:     Stat{Kind: Regular, Mode: 0644, Size: 0},
		Filename: string(name),
	}
	if !e.needsPax() {
		t.Fatal("needsPax() = false, want true for a 101-byte filename")
	}
	want := roundUp512(512+uint64(len(e.paxPayload()))) + 512
	if got := e.Footprint(); got != want {
		t.Errorf("Footprint() = %d, want %d", got, want)
	}
}

func TestFootprintHugeSizeTriggersPax(t *testing.T) {
	// S5: a file larger than 2^33-1 bytes needs a pax size= record.
	e := &Entry{
		Stat:     Stat{Kind: Regular, Mode: 0644, Size: 9 << 30},
		Filename: "huge",
	}
	if !e.needsPax() {
		t.Fatal("needsPax() = false, want true for a >8GiB file")
	}
	payload := roundUp512(uint64(512 + len(e.paxPayload())))
	want := payload + 512 + roundUp512(e.Stat.Size)
	if got := e.Footprint(); got != want {
		t.Errorf("Footprint() = %d, want %d", got, want)
	}
}

func TestFootprintDisjointness(t *testing.T) {
	// G1: summed footprints of a sequence of entries must exactly equal
	// the offset delta between the first and one-past-the-last entry.
	entries := []*Entry{
		{Stat: Stat{Kind: Directory}, Filename: "dir/"},
		{Stat: Stat{Kind: Regular, Size: 100}, Filename: "dir/a"},
		{Stat: Stat{Kind: Regular, Size: 4096}, Filename: "dir/b"},
	}
	var offset uint64
	for _, e := range entries {
		e.Offset = offset
		offset += e.Footprint()
	}
	for i := 0; i+1 < len(entries); i++ {
		if got, want := entries[i].Offset+entries[i].Footprint(), entries[i+1].Offset; got != want {
			t.Errorf("entry %d: offset+footprint = %d, next offset = %d", i, got, want)
		}
	}
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	e := &Entry{Stat: Stat{Kind: Kind(99)}, Filename: "x"}
	if err := e.validate(); err == nil {
		t.Fatal("validate() = nil, want error for unsupported kind (D4)")
	}
}

func TestValidateDirectoryNameConvention(t *testing.T) {
	// D1: directories end in "/"; regular/symlink entries must not.
	dir := &Entry{Stat: Stat{Kind: Directory}, Filename: "dir"}
	if err := dir.validate(); err == nil {
		t.Fatal("validate() = nil, want error: directory name missing trailing slash")
	}
	reg := &Entry{Stat: Stat{Kind: Regular}, Filename: "file/"}
	if err := reg.validate(); err == nil {
		t.Fatal("validate() = nil, want error: regular entry name ends in slash")
	}
}
