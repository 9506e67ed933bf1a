package transport

import "sync"

// Barrier is a reusable (cyclic) rendezvous point for a fixed number of
// parties, the "distributed barrier" spec.md §4.G requires around the
// create/truncate fence, the pre-100%-progress point, and run close.
type Barrier struct {
	n       int
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	gen     uint64 // guards against a late arriver reusing a released phase
}

// NewBarrier returns a Barrier for n parties.
func NewBarrier(n int) *Barrier {
	b := &Barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Arrive blocks until all n parties have called Arrive for the current
// phase, then releases everyone and advances to the next phase.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
