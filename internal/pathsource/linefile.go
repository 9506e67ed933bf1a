package pathsource

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/xerrors"
)

// LineFile reads one path per line from a file, or from standard input
// when path is "-", per the -T flag in spec.md §6.
type LineFile struct {
	f       *os.File
	owned   bool
	scanner *bufio.Scanner
}

// NewLineFile opens path (or stdin, for "-") as a newline-delimited list
// of input paths.
func NewLineFile(path string) (*LineFile, error) {
	if path == "-" {
		return &LineFile{f: os.Stdin, owned: false, scanner: bufio.NewScanner(os.Stdin)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening file list %s: %w", path, err)
	}
	return &LineFile{f: f, owned: true, scanner: bufio.NewScanner(f)}, nil
}

// Next implements Source. Blank lines are skipped, since "" is reserved
// for end-of-stream.
func (l *LineFile) Next() (string, error) {
	for l.scanner.Scan() {
		if line := l.scanner.Text(); line != "" {
			return line, nil
		}
	}
	if err := l.scanner.Err(); err != nil && err != io.EOF {
		return "", xerrors.Errorf("reading file list: %w", err)
	}
	return "", nil
}

// Close releases the underlying file, if this LineFile opened one.
func (l *LineFile) Close() error {
	if l.owned {
		return l.f.Close()
	}
	return nil
}
