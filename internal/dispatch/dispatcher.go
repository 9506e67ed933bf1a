// Package dispatch implements the work dispatcher / coordinator of
// spec.md §4.E: it drives the planner, round-robins job batches across
// worker links bounded by in-flight capacity and batch size, reaps acks,
// and — once the path source is exhausted and every outstanding batch is
// acknowledged — sends each worker a terminator, writes the synthetic
// index-file descriptor directly, and closes out the archive with its
// trailer.
package dispatch

import (
	"context"
	"encoding/binary"

	"github.com/distr1/ptar/internal/planner"
	"github.com/distr1/ptar/internal/sharedfile"
	"github.com/distr1/ptar/internal/tarfmt"
	"github.com/distr1/ptar/internal/transport"
	"github.com/distr1/ptar/internal/wire"
	"github.com/distr1/ptar/internal/worker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

// workerSlot is the coordinator's view of one worker rank: its link, the
// semaphore gating MaxJobsInFlight outstanding batches (F1), the count
// of batches still awaiting an ack, the next tag to assign, and the
// sends still in flight to be waited on at drain time.
type workerSlot struct {
	link     *transport.Endpoint
	sem      *semaphore.Weighted
	inFlight int
	nextTag  int
	pending  []*transport.Request
}

// Coordinator runs the dispatch loop against a set of worker links.
type Coordinator struct {
	cfg      Config
	planner  *planner.Planner
	workers  []*workerSlot
	Progress *Progress
}

// NewCoordinator returns a Coordinator dispatching p's entries across
// links, one per worker rank.
func NewCoordinator(cfg Config, p *planner.Planner, links []*transport.Endpoint) *Coordinator {
	workers := make([]*workerSlot, len(links))
	for i, l := range links {
		workers[i] = &workerSlot{
			link: l,
			sem:  semaphore.NewWeighted(int64(cfg.MaxJobsInFlight)),
		}
	}
	return &Coordinator{cfg: cfg, planner: p, workers: workers, Progress: NewProgress()}
}

// Run drives the full coordinator lifecycle: PLANNING (building and
// dispatching batches while reaping acks), DRAINING (waiting out every
// outstanding batch once the planner is exhausted), TERMINATING
// (broadcasting one terminator per worker), and FINALIZING (writing the
// index-file descriptor directly and the end-of-archive trailer). out
// and names are the coordinator's own rank's shared-file handle and
// identity resolver, used only for the two direct writes in FINALIZING.
//
// preFinalize, if non-nil, runs after TERMINATING and before FINALIZING
// — this is where the caller rendezvous on the §4.G "second barrier"
// that precedes the coordinator's final 100%-progress report, so the
// trailer is only written once every worker rank has confirmed it has
// written everything it was ever going to write.
func (c *Coordinator) Run(ctx context.Context, out *sharedfile.Writer, names tarfmt.NameResolver, preFinalize func() error) error {
	if err := c.plan(ctx); err != nil {
		return err
	}
	if err := c.drain(); err != nil {
		return err
	}
	if err := c.terminate(); err != nil {
		return err
	}
	if preFinalize != nil {
		if err := preFinalize(); err != nil {
			return err
		}
	}
	return c.finalize(out, names)
}

// plan is the PLANNING state: round-robin over workers, building and
// dispatching one batch per worker per pass whenever that worker has
// in-flight capacity, until the planner reports exhaustion.
func (c *Coordinator) plan(ctx context.Context) error {
	for {
		exhausted := false
		progressed := false

		for _, ws := range c.workers {
			c.reapAcks(ws)

			if !ws.sem.TryAcquire(1) {
				continue
			}

			entries, exh, err := buildBatch(c.planner, c.cfg)
			if err != nil {
				ws.sem.Release(1)
				return xerrors.Errorf("building job batch: %w", err)
			}
			if exh {
				exhausted = true
			}
			if len(entries) == 0 {
				ws.sem.Release(1)
				if exhausted {
					break
				}
				continue
			}

			tag := ws.nextTag
			ws.nextTag++
			data := wire.SerializeBatch(entries)
			req := ws.link.Isend(tag, data)
			ws.pending = append(ws.pending, req)
			ws.inFlight++
			c.Progress.addEntries(uint64(len(entries)))
			progressed = true
		}

		if exhausted {
			return nil
		}
		if !progressed {
			// Every worker is at its in-flight cap: block on whichever
			// one has outstanding batches rather than spinning.
			c.blockForAck()
		}
	}
}

// blockForAck blocks on the first worker with an outstanding batch until
// it acks, freeing capacity for the next PLANNING pass. It never blocks
// forever: plan only calls it when every worker failed a TryAcquire,
// which means every worker has inFlight == MaxJobsInFlight > 0.
func (c *Coordinator) blockForAck() {
	for _, ws := range c.workers {
		if ws.inFlight > 0 {
			c.applyAck(ws, ws.link.Recv())
			return
		}
	}
}

// reapAcks non-blockingly drains every ack currently waiting on ws's
// link, releasing in-flight capacity for each.
func (c *Coordinator) reapAcks(ws *workerSlot) {
	for {
		msg, ok := ws.link.TryRecv()
		if !ok {
			return
		}
		c.applyAck(ws, msg)
	}
}

// applyAck accounts for one ack message: it frees one unit of in-flight
// capacity and folds the acked byte count into the progress tally (the
// ack's payload is the worker's chunk_written counter, per §4.F step 4).
func (c *Coordinator) applyAck(ws *workerSlot, msg transport.Message) {
	if len(msg.Data) >= 8 {
		c.Progress.addBytes(binary.LittleEndian.Uint64(msg.Data))
	}
	ws.inFlight--
	ws.sem.Release(1)
}

// drain is the DRAINING state: wait for every worker's outstanding sends
// to land, then block for each batch's ack.
func (c *Coordinator) drain() error {
	for _, ws := range c.workers {
		if err := transport.WaitAll(ws.pending); err != nil {
			return xerrors.Errorf("draining outstanding sends: %w", err)
		}
		ws.pending = nil
		for ws.inFlight > 0 {
			c.applyAck(ws, ws.link.Recv())
		}
	}
	return nil
}

// terminate is the TERMINATING state: send exactly one terminator batch
// to every worker and wait for all of them to land.
func (c *Coordinator) terminate() error {
	reqs := make([]*transport.Request, 0, len(c.workers))
	for _, ws := range c.workers {
		reqs = append(reqs, ws.link.Isend(ws.nextTag, wire.Terminator()))
	}
	return transport.WaitAll(reqs)
}

// finalize is the FINALIZING state: the coordinator writes the
// synthetic index-file descriptor directly (it is never dispatched to a
// worker, per §4.D/§4.E) and appends the end-of-archive trailer.
func (c *Coordinator) finalize(out *sharedfile.Writer, names tarfmt.NameResolver) error {
	indexEntry, err := c.planner.Finalize()
	if err != nil {
		return xerrors.Errorf("finalizing index: %w", err)
	}
	if _, err := worker.WriteEntry(out, indexEntry, names); err != nil {
		return xerrors.Errorf("writing index entry: %w", err)
	}
	if err := out.WriteTrailer(c.planner.Offset()); err != nil {
		return xerrors.Errorf("writing trailer: %w", err)
	}
	return out.Close()
}
