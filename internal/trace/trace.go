// Package trace implements the optional timing telemetry spec.md §1
// allows as an external/optional concern: a Chrome-trace-event-shaped
// JSON stream describing what each rank spent its time doing, gzipped
// on the way to disk. It sits entirely off the hot path — nothing in
// internal/dispatch or internal/worker depends on it being enabled.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/pgzip"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s, gzip-compressed, as a Chrome
// trace event file into w. The returned io.Closer must be closed (after
// the run completes) to flush the gzip stream.
func Sink(w io.Writer) io.Closer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	gz := pgzip.NewWriter(w)
	sink = gz
	sink.Write([]byte{'['})
	return gz
}

// Enable creates a trace file at $TMPDIR/ptar.traces/prefix.$PID.json.gz
// and directs all following Event()s into it. The returned function
// flushes and closes the file; callers should defer it.
func Enable(prefix string) (func() error, error) {
	fn := filepath.Join(os.TempDir(), "ptar.traces", fmt.Sprintf("%s.%d.json.gz", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(fn)
	if err != nil {
		return nil, err
	}
	gz := Sink(f)
	return func() error {
		if err := gz.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

// PendingEvent is an in-progress trace event; call Done once the work
// it describes has finished.
type PendingEvent struct {
	Name           string      `json:"name"`
	Categories     string      `json:"cat"`
	Type           string      `json:"ph"`
	ClockTimestamp uint64      `json:"ts"`
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"` // coordinator is 0, worker rank N is N+1
	Tid            uint64      `json:"tid"`
	Args           interface{} `json:"args,omitempty"`

	start time.Time
}

// Done records the event's duration and appends it to the current sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trace] %v", err)
	}
}

// Event starts a new pending trace event for the given rank (pid),
// e.g. Event("write_entry", rank).
func Event(name string, rank int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Pid:            uint64(rank),
		start:          time.Now(),
	}
}
