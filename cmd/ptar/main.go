// Command ptar cooperatively writes disjoint byte ranges of a single
// POSIX pax/ustar tar archive from many goroutine "ranks": one
// coordinator enumerates input files, assigns each one a precomputed
// offset in the final archive, and dispatches work batches to worker
// ranks, which seek the shared output to their assigned offsets and
// write header and payload (spec.md §1-§2).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/distr1/ptar"
	"github.com/distr1/ptar/internal/dispatch"
	"github.com/distr1/ptar/internal/identity"
	"github.com/distr1/ptar/internal/oninterrupt"
	"github.com/distr1/ptar/internal/pathsource"
	"github.com/distr1/ptar/internal/planner"
	"github.com/distr1/ptar/internal/progresslog"
	"github.com/distr1/ptar/internal/sharedfile"
	"github.com/distr1/ptar/internal/trace"
	"github.com/distr1/ptar/internal/transport"
	"github.com/distr1/ptar/internal/worker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

const usageText = `usage: ptar -c -f archive.tar [-T filelist] [path ...]

ptar creates a POSIX pax/ustar tar archive, writing it in parallel from
a configurable number of worker ranks.

  -c             required: select create mode (extraction is out of scope)
  -f path        required: output archive path
  -T path        newline-delimited file of paths to add; "-" reads stdin;
                 may be repeated
  path ...       additional files or directories to add (directories are
                 walked recursively)
  -h             print this message and exit 0

Tuning flags (see spec.md §4.E for their meaning):
  -jobs                  number of worker ranks (default: NumCPU-1, min 1)
  -max_jobs_in_flight    outstanding job batches per worker (default 3)
  -max_files_in_job      descriptors per job batch (default 100)
  -target_job_size       bytes per job batch before it is cut (default 1GiB)
  -buffer_size           per-rank write buffer size, bytes (default 64MiB)
  -trace prefix          write gzipped chrome-trace-event telemetry under
                         $TMPDIR/ptar.traces/prefix.<pid>.json.gz
`

// stringList accumulates repeated -T flag occurrences.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type config struct {
	create          bool
	archive         string
	lists           stringList
	jobs            int
	maxJobsInFlight int
	maxFilesInJob   int
	targetJobSize   int64
	bufferSize      int
	tracePrefix     string
}

func parseFlags(args []string) (*config, []string, error) {
	fs := flag.NewFlagSet("ptar", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usageText) }

	cfg := &config{}
	fs.BoolVar(&cfg.create, "c", false, "create mode (required)")
	fs.StringVar(&cfg.archive, "f", "", "output archive path (required)")
	fs.Var(&cfg.lists, "T", "newline-delimited path list file, - for stdin (repeatable)")
	fs.IntVar(&cfg.jobs, "jobs", defaultJobs(), "number of worker ranks")
	fs.IntVar(&cfg.maxJobsInFlight, "max_jobs_in_flight", 3, "outstanding job batches per worker")
	fs.IntVar(&cfg.maxFilesInJob, "max_files_in_job", 100, "descriptors per job batch")
	fs.Int64Var(&cfg.targetJobSize, "target_job_size", 1<<30, "bytes per job batch before it is cut")
	fs.IntVar(&cfg.bufferSize, "buffer_size", 64<<20, "per-rank write buffer size, bytes")
	fs.StringVar(&cfg.tracePrefix, "trace", "", "enable timing telemetry under this file prefix")
	help := fs.Bool("h", false, "print usage and exit 0")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if *help {
		fs.Usage()
		os.Exit(0)
	}
	return cfg, fs.Args(), nil
}

func defaultJobs() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// buildPathSource chains, in order: every -T file list, then every
// positional path (walked recursively if it is a directory), per
// spec.md §4.C ("the source may be the concatenation of any number of
// sub-sources consumed in order").
func buildPathSource(cfg *config, positional []string) (pathsource.Source, func(), error) {
	var sources []pathsource.Source
	var lineFiles []*pathsource.LineFile
	for _, listPath := range cfg.lists {
		lf, err := pathsource.NewLineFile(listPath)
		if err != nil {
			for _, opened := range lineFiles {
				opened.Close()
			}
			return nil, nil, err
		}
		lineFiles = append(lineFiles, lf)
		sources = append(sources, lf)
	}
	for _, p := range positional {
		sources = append(sources, pathsource.NewWalker(p))
	}
	closeAll := func() {
		for _, lf := range lineFiles {
			lf.Close()
		}
	}
	return pathsource.NewChain(sources...), closeAll, nil
}

func bumpRlimitNOFILE() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}
	rlim.Cur = rlim.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}

// runArchive drives one archiving run end to end: it validates flags,
// starts the offset planner, fences the shared output file's
// create/truncate against every rank's open (SPEC_FULL.md §2: every
// rank opens its own *os.File after that fence, even though all ranks
// share an address space here, because the invariant under test — no
// implicit OS seek/query — is about I/O discipline, not process
// boundaries), and runs the coordinator and worker ranks to completion.
func runArchive(ctxb context.Context, cfg *config, positional []string) error {
	if !cfg.create {
		return xerrors.New("-c is required (create mode; extraction is out of scope)")
	}
	if cfg.archive == "" {
		return xerrors.New("-f is required (output archive path)")
	}
	if cfg.jobs < 1 {
		return xerrors.New("-jobs must be at least 1")
	}

	if warning, err := sharedfile.CheckSparseFriendly(cfg.archive); err == nil && warning != "" {
		log.Printf("warning: %s", warning)
	}
	if err := bumpRlimitNOFILE(); err != nil {
		log.Printf("warning: bumping RLIMIT_NOFILE failed: %v", err)
	}

	if cfg.tracePrefix != "" {
		stop, err := trace.Enable(cfg.tracePrefix)
		if err != nil {
			return xerrors.Errorf("enabling trace: %w", err)
		}
		defer stop()
	}

	src, closeSrc, err := buildPathSource(cfg, positional)
	if err != nil {
		return xerrors.Errorf("building path source: %w", err)
	}
	defer closeSrc()

	oracle := planner.OSOracle{}
	pl, err := planner.New(src, oracle, cfg.archive)
	if err != nil {
		return xerrors.Errorf("starting planner: %w", err)
	}

	oninterrupt.Register(func() {
		pl.Abort()
		os.Remove(cfg.archive)
	})
	ptar.RegisterAtExit(func() error {
		pl.Abort()
		return nil
	})

	// §4.G lifecycle: the coordinator creates/truncates the shared
	// output file exactly once, before any worker opens it.
	f, err := sharedfile.CreateTruncate(cfg.archive)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("closing freshly-truncated output: %w", err)
	}

	numRanks := cfg.jobs + 1 // coordinator + workers
	openBarrier := transport.NewBarrier(numRanks)
	preFinalBarrier := transport.NewBarrier(numRanks)
	closeBarrier := transport.NewBarrier(numRanks)

	coordLinks := make([]*transport.Endpoint, cfg.jobs)
	workerLinks := make([]*transport.Endpoint, cfg.jobs)
	for i := range coordLinks {
		coordLinks[i], workerLinks[i] = transport.NewLink(cfg.maxJobsInFlight)
	}

	dcfg := dispatch.Config{
		MaxJobsInFlight: cfg.maxJobsInFlight,
		MaxFilesInJob:   cfg.maxFilesInJob,
		TargetJobSize:   uint64(cfg.targetJobSize),
	}
	coord := dispatch.NewCoordinator(dcfg, pl, coordLinks)

	progress := progresslog.New(os.Stderr, coord.Progress, 2*time.Second)
	go progress.Run()

	g, gctx := errgroup.WithContext(ctxb)
	_ = gctx // cancellation is best-effort: there is no mid-run abort protocol (spec.md §5)

	g.Go(func() error {
		ev := trace.Event("coordinator", 0)
		defer ev.Done()
		openBarrier.Arrive()
		out, err := sharedfile.OpenWriter(cfg.archive, cfg.bufferSize)
		if err != nil {
			return xerrors.Errorf("coordinator: opening output: %w", err)
		}
		names := identity.NewCache()
		err = coord.Run(gctx, out, names, func() error {
			preFinalBarrier.Arrive()
			progress.Stop()
			return nil
		})
		closeBarrier.Arrive()
		return err
	})

	for rank := 0; rank < cfg.jobs; rank++ {
		rank, link := rank, workerLinks[rank]
		g.Go(func() error {
			ev := trace.Event("worker", rank+1)
			defer ev.Done()
			openBarrier.Arrive()
			out, err := sharedfile.OpenWriter(cfg.archive, cfg.bufferSize)
			if err != nil {
				return xerrors.Errorf("worker %d: opening output: %w", rank, err)
			}
			names := identity.NewCache()
			ex := worker.New(rank+1, link, out, names)
			err = ex.Run()
			preFinalBarrier.Arrive()
			closeBarrier.Arrive()
			return err
		})
	}

	return g.Wait()
}

func funcmain() error {
	cfg, positional, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	ctx, canc := ptar.InterruptibleContext()
	defer canc()
	if err := runArchive(ctx, cfg, positional); err != nil {
		return err
	}
	return ptar.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
