// Package pathsource implements the external path-source interface
// (spec.md §4.C): a stateful, single-consumer stream of input paths, the
// empty string signaling end-of-stream. It is deliberately ignorant of
// tar and of offsets — the offset planner (internal/planner) is the only
// consumer.
package pathsource

// Source yields successive input paths. Next returns "" (with a nil
// error) at end-of-stream. A Source is stateful and single-consumer: it
// must not be read from concurrently.
type Source interface {
	Next() (string, error)
}
