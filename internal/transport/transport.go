// Package transport implements the message-passing substrate of spec.md
// §6: non-blocking tagged send, a probe/receive pair (blocking when
// explicitly requested, non-blocking otherwise), wait-all over a set of
// pending sends, and a barrier. It has no rank/size query: each worker
// is identified by the Endpoint of its link.
//
// The substrate here renders each rank as a goroutine and each
// point-to-point link as a pair of buffered Go channels (see
// SPEC_FULL.md §2 for why: goroutines-as-ranks preserves the "no shared
// memory between participants" shape of the original MPI design without
// requiring a cluster scheduler). A later network-backed Endpoint
// (gRPC streams, following the shape cmd/distri's builder.go uses for
// its own streaming build RPC) would be a drop-in replacement offering
// these same methods; Endpoint itself is a concrete type, not an
// interface.
package transport

// Message is one transport message: a tag plus payload bytes (a
// serialized job batch, or an 8-byte ack). The dispatcher numbers each
// worker's batches 0, 1, 2, ... and uses that number as the tag; the
// worker echoes it on the batch's ack.
type Message struct {
	Tag  int
	Data []byte
}

// Request is a pending send operation.
type Request struct {
	done chan struct{}
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) complete(err error) {
	r.err = err
	close(r.done)
}

// Test is a non-blocking completion check.
func (r *Request) Test() (done bool, err error) {
	select {
	case <-r.done:
		return true, r.err
	default:
		return false, nil
	}
}

// Wait blocks until the send completes.
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// WaitAll blocks until every non-nil request in reqs has completed,
// returning the first error encountered (if any).
func WaitAll(reqs []*Request) error {
	var first error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Endpoint is one side of a point-to-point link between the coordinator
// and one worker rank.
type Endpoint struct {
	out chan<- Message
	in  <-chan Message
}

// NewLink creates a point-to-point link with the given per-direction
// buffer depth (ordinarily MAX_JOBS_IN_FLIGHT, so a send never has to
// block: the coordinator never posts more in-flight sends than the
// buffer can hold), returning the coordinator-side and worker-side
// endpoints.
func NewLink(buffer int) (coordinatorSide, workerSide *Endpoint) {
	toWorker := make(chan Message, buffer)
	toCoordinator := make(chan Message, buffer)
	return &Endpoint{out: toWorker, in: toCoordinator},
		&Endpoint{out: toCoordinator, in: toWorker}
}

// Isend posts a non-blocking tagged send. If the outbound buffer has
// room the send completes immediately (Test on the returned Request
// reports done right away); otherwise a goroutine completes it once
// room frees up, like an MPI Isend whose matching receive has not been
// posted yet.
func (e *Endpoint) Isend(tag int, data []byte) *Request {
	req := newRequest()
	msg := Message{Tag: tag, Data: data}
	select {
	case e.out <- msg:
		req.complete(nil)
	default:
		go func() {
			e.out <- msg
			req.complete(nil)
		}()
	}
	return req
}

// TryRecv is a non-blocking probe-and-receive: if a message is already
// waiting it is returned immediately (ok == true); otherwise it returns
// immediately with ok == false. This fuses spec.md §6's separate
// "probe" and "receive" primitives, which is sound here because an
// Endpoint has exactly one logical reader.
func (e *Endpoint) TryRecv() (Message, bool) {
	select {
	case msg := <-e.in:
		return msg, true
	default:
		return Message{}, false
	}
}

// Recv blocks until a message is available. This is the worker's
// blocking probe from §4.F step 1 ("if the queue is empty, block on a
// probe for any incoming message").
func (e *Endpoint) Recv() Message {
	return <-e.in
}
