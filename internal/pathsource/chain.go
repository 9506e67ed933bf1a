package pathsource

// Chain concatenates any number of sub-sources, consumed in order: it
// exhausts each one (Next returns "") before moving to the next, per
// spec.md §4.C ("the source may be the concatenation of any number of
// sub-sources consumed in order"). This is how -T file lists and
// positional CLI arguments are combined into a single path source.
type Chain struct {
	sources []Source
	idx     int
}

// NewChain returns a Source that reads each of sources to exhaustion, in
// order.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Next implements Source.
func (c *Chain) Next() (string, error) {
	for c.idx < len(c.sources) {
		path, err := c.sources[c.idx].Next()
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}
		c.idx++
	}
	return "", nil
}
