package dispatch

import (
	"github.com/distr1/ptar/internal/planner"
	"github.com/distr1/ptar/internal/tarfmt"
)

// buildBatch pulls descriptors from p until cfg's file-count or
// footprint-size bound is reached (§4.E step 3), or the planner is
// exhausted. exhausted reports whether the planner ran dry while
// filling this batch, in which case entries may still hold a partial,
// non-empty batch that must still be dispatched.
func buildBatch(p *planner.Planner, cfg Config) (entries []*tarfmt.Entry, exhausted bool, err error) {
	var footprint uint64
	for len(entries) < cfg.MaxFilesInJob && footprint < cfg.TargetJobSize {
		e, err := p.Next()
		if err != nil {
			return entries, false, err
		}
		if e == nil {
			return entries, true, nil
		}
		entries = append(entries, e)
		footprint += e.Footprint()
	}
	return entries, false, nil
}
