// Package progresslog periodically prints the coordinator's dispatch
// progress: entries dispatched so far and bytes acknowledged by
// workers. On a terminal it overwrites the same line; piped to a file
// or another process it prints one line per tick, since carriage
// returns in a log file are just noise.
package progresslog

import (
	"fmt"
	"io"
	"time"

	"github.com/mattn/go-isatty"
)

// Source is anything the logger can poll for a progress snapshot;
// internal/dispatch.Progress satisfies it.
type Source interface {
	Snapshot() (entries, bytes uint64)
}

// Logger prints periodic progress lines to w.
type Logger struct {
	w      io.Writer
	tty    bool
	src    Source
	ticker *time.Ticker
	done   chan struct{}
}

// New returns a Logger that, once started, polls src every interval and
// prints to w.
func New(w io.Writer, src Source, interval time.Duration) *Logger {
	tty := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Logger{
		w:      w,
		tty:    tty,
		src:    src,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
}

// Run blocks, printing a progress line on every tick, until Stop is
// called.
func (l *Logger) Run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C:
			l.print()
		}
	}
}

// Stop halts the ticker and prints one final progress line.
func (l *Logger) Stop() {
	l.ticker.Stop()
	close(l.done)
	l.print()
	if l.tty {
		fmt.Fprintln(l.w)
	}
}

func (l *Logger) print() {
	entries, bytes := l.src.Snapshot()
	line := fmt.Sprintf("%d entries dispatched, %s acknowledged", entries, humanBytes(bytes))
	if l.tty {
		fmt.Fprintf(l.w, "\r\033[K%s", line)
	} else {
		fmt.Fprintln(l.w, line)
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
