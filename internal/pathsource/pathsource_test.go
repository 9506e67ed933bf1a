package pathsource

import (
	"os"
	"path/filepath"
	"testing"
)

type sliceSource struct {
	items []string
	i     int
}

func (s *sliceSource) Next() (string, error) {
	if s.i >= len(s.items) {
		return "", nil
	}
	v := s.items[s.i]
	s.i++
	return v, nil
}

func drain(t *testing.T, src Source) []string {
	t.Helper()
	var got []string
	for {
		p, err := src.Next()
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		if p == "" {
			return got
		}
		got = append(got, p)
	}
}

func TestChainConcatenatesInOrder(t *testing.T) {
	a := &sliceSource{items: []string{"a1", "a2"}}
	b := &sliceSource{items: nil}
	c := &sliceSource{items: []string{"c1"}}
	chain := NewChain(a, b, c)

	got := drain(t, chain)
	want := []string{"a1", "a2", "c1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLineFileReadsOnePathPerLine(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(listPath, []byte("one\ntwo\nthree\n"), 0644); err != nil {
		t.Fatal(err)
	}
	lf, err := NewLineFile(listPath)
	if err != nil {
		t.Fatal(err)
	}
	defer lf.Close()

	got := drain(t, lf)
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkerVisitsFileThenDescendsDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWalker(dir)
	got := drain(t, w)

	want := []string{
		dir,
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "sub"),
		filepath.Join(dir, "sub", "b.txt"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWalkerSinglePlainFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "only.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	w := NewWalker(file)
	got := drain(t, w)
	if len(got) != 1 || got[0] != file {
		t.Errorf("got %v, want [%q]", got, file)
	}
}
