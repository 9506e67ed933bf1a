package worker

import (
	"encoding/binary"

	"github.com/distr1/ptar/internal/sharedfile"
	"github.com/distr1/ptar/internal/tarfmt"
	"github.com/distr1/ptar/internal/transport"
	"github.com/distr1/ptar/internal/wire"
	"golang.org/x/xerrors"
)

// queuedEntry is one descriptor held locally, tagged with whether it is
// its batch's ack-leader (§4.F: "the first descriptor in each received
// batch is marked ack-leader ... and carries the batch's tag").
type queuedEntry struct {
	entry     *tarfmt.Entry
	ackLeader bool
	tag       int
}

// Executor is one worker rank's state: its link to the coordinator, its
// view of the shared output file, a FIFO queue of descriptors awaiting a
// write, and the running byte count since the last ack.
type Executor struct {
	Rank  int
	link  *transport.Endpoint
	out   *sharedfile.Writer
	names tarfmt.NameResolver

	queue        []*queuedEntry
	chunkWritten uint64
	done         bool
}

// New returns an Executor for one worker rank.
func New(rank int, link *transport.Endpoint, out *sharedfile.Writer, names tarfmt.NameResolver) *Executor {
	return &Executor{Rank: rank, link: link, out: out, names: names}
}

// Run drives the loop in spec.md §4.F until the terminator has been
// received and the local queue has drained, then closes this rank's
// output handle.
func (ex *Executor) Run() error {
	for !(ex.done && len(ex.queue) == 0) {
		if len(ex.queue) == 0 {
			// Block on a probe for any incoming message (§4.F step 1).
			if err := ex.ingest(ex.link.Recv()); err != nil {
				return err
			}
		} else if msg, ok := ex.link.TryRecv(); ok {
			if err := ex.ingest(msg); err != nil {
				return err
			}
		}

		if len(ex.queue) == 0 {
			continue
		}

		qe := ex.queue[0]
		ex.queue = ex.queue[1:]

		n, err := WriteEntry(ex.out, qe.entry, ex.names)
		if err != nil {
			return err
		}
		ex.chunkWritten += n

		if qe.ackLeader {
			var ack [8]byte
			binary.LittleEndian.PutUint64(ack[:], ex.chunkWritten)
			ex.link.Isend(qe.tag, ack[:])
			ex.chunkWritten = 0
		}
	}
	return ex.out.Close()
}

// ingest deserializes one received job batch and appends its descriptors
// to the local queue, stopping immediately at a terminator (§4.F step 2).
func (ex *Executor) ingest(msg transport.Message) error {
	entries, _, err := wire.DeserializeBatch(msg.Data)
	if err != nil {
		return xerrors.Errorf("worker %d: deserializing batch: %w", ex.Rank, err)
	}
	for i, e := range entries {
		if wire.IsTerminator(e) {
			ex.done = true
			return nil
		}
		ex.queue = append(ex.queue, &queuedEntry{entry: e, ackLeader: i == 0, tag: msg.Tag})
	}
	return nil
}
