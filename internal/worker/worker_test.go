package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/distr1/ptar/internal/sharedfile"
	"github.com/distr1/ptar/internal/tarfmt"
	"github.com/distr1/ptar/internal/transport"
	"github.com/distr1/ptar/internal/wire"
)

type fakeNames struct{}

func (fakeNames) UserName(uid uint32) (string, error)  { return "root", nil }
func (fakeNames) GroupName(gid uint32) (string, error) { return "root", nil }

func openTestWriter(t *testing.T) (*sharedfile.Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.tar")
	if _, err := sharedfile.CreateTruncate(path); err != nil {
		t.Fatal(err)
	}
	w, err := sharedfile.OpenWriter(path, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return w, path
}

// TestTerminatorOnlyBatchPerformsNoWrites exercises spec.md §8's testable
// property that a worker receiving only the terminator writes nothing to
// disk and exits cleanly.
func TestTerminatorOnlyBatchPerformsNoWrites(t *testing.T) {
	coord, link := transport.NewLink(1)
	w, path := openTestWriter(t)

	ex := New(1, link, w, fakeNames{})

	coord.Isend(0, wire.Terminator())

	if err := ex.Run(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("archive size = %d after a terminator-only batch, want 0", info.Size())
	}
}

func TestExecutorWritesBatchThenAcks(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "payload.txt")
	if err := os.WriteFile(payloadPath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	coord, link := transport.NewLink(2)
	w, archivePath := openTestWriter(t)
	ex := New(1, link, w, fakeNames{})

	e := &tarfmt.Entry{
		Stat:     tarfmt.Stat{Kind: tarfmt.Regular, Mode: 0644, Size: 5},
		Filename: payloadPath,
		Offset:   0,
	}
	batch := wire.SerializeBatch([]*tarfmt.Entry{e})
	coord.Isend(42, batch)
	coord.Isend(0, wire.Terminator())

	if err := ex.Run(); err != nil {
		t.Fatal(err)
	}

	msg, ok := coord.TryRecv()
	if !ok {
		t.Fatal("expected an ack after the ack-leader entry was written")
	}
	if msg.Tag != 42 {
		t.Errorf("ack tag = %d, want 42", msg.Tag)
	}

	got, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1024 {
		t.Fatalf("archive length = %d, want 1024 (header + padded payload)", len(got))
	}
}

func TestWriteEntryRegularFileReadsPayload(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(payloadPath, []byte("abcdef"), 0644); err != nil {
		t.Fatal(err)
	}
	w, archivePath := openTestWriter(t)

	e := &tarfmt.Entry{
		Stat:     tarfmt.Stat{Kind: tarfmt.Regular, Mode: 0644, Size: 6},
		Filename: payloadPath,
	}
	n, err := WriteEntry(w, e, fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1024 {
		t.Errorf("WriteEntry returned %d, want 1024", n)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got[512:518]) != "abcdef" {
		t.Errorf("payload block = %q, want %q", got[512:518], "abcdef")
	}
}

func TestWriteEntryDirectoryHasNoPayload(t *testing.T) {
	w, archivePath := openTestWriter(t)
	e := &tarfmt.Entry{
		Stat:     tarfmt.Stat{Kind: tarfmt.Directory, Mode: 0755},
		Filename: "adir/",
	}
	n, err := WriteEntry(w, e, fakeNames{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 512 {
		t.Errorf("WriteEntry for a directory returned %d, want 512", n)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 512 {
		t.Errorf("archive size = %d, want 512", info.Size())
	}
}
