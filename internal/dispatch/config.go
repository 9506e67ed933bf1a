package dispatch

// Config holds the coordinator's tunable constants from spec.md §4.E,
// each "should be configurable" per the spec; cmd/ptar exposes them as
// flags.
type Config struct {
	// MaxJobsInFlight is the maximum number of unacknowledged job
	// batches the coordinator will keep outstanding per worker (F1).
	MaxJobsInFlight int
	// MaxFilesInJob bounds a job batch's descriptor count.
	MaxFilesInJob int
	// TargetJobSize bounds a job batch's cumulative archive footprint,
	// in bytes.
	TargetJobSize uint64
}

// DefaultConfig returns spec.md §4.E's typical defaults.
func DefaultConfig() Config {
	return Config{
		MaxJobsInFlight: 3,
		MaxFilesInJob:   100,
		TargetJobSize:   1 << 30, // 1 GiB
	}
}
