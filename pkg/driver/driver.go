// Package driver implements the bounded path explorer: the outer loop
// over packet-sequence length k, the inner loop negating branches
// discovered in the execution tree, the stuckness heuristic, partial-path
// replay, and assume-triggered reseeding.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/store"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// stuckThreshold is the number of consecutive runs without new branch
// coverage after which the driver abandons tree enumeration at the
// current packet-sequence length and moves on.
const stuckThreshold = 50

// RunResult reports what one simulated run did, as observed by the
// collaborator that drives the simulated processor.
type RunResult struct {
	// ProcessedPackets is how many packets the run consumed before
	// terminating.
	ProcessedPackets uint32
	// EarlyExit is true when the run ended before processing the k-th
	// packet (e.g. the software under test rejected an input).
	EarlyExit bool
	// HostError is non-nil when the simulated software signalled a bug
	// (as opposed to the engine's own control-flow signals).
	HostError error
}

// Simulator is the external collaborator the driver restarts between
// runs. Implementations are expected to call ctx.GetSymbolicBytes* and
// tr.Add/tr.Assume as the simulated program executes; the driver only
// observes the aggregate RunResult and any control-flow error Run
// propagates (trace.ErrAssumptionAdded in particular).
type Simulator interface {
	// Reset tears down and rebuilds the simulated processor ahead of a
	// fresh run; a full restart is required because a run mutates
	// simulator-global state.
	Reset(ctx *execctx.Context, tr *trace.Trace)
	// Run drives one end-to-end execution bounded by packet-sequence
	// length k; k == 0 means no packet bound (used by replay mode,
	// which runs the stored input once). It returns
	// trace.ErrAssumptionAdded if the run ended because the program
	// called assume with a new predicate.
	Run(ctx context.Context, k uint32) (RunResult, error)
}

// CoverageCounter is the external collaborator queried for the
// stuckness heuristic.
type CoverageCounter interface {
	// Count returns the cumulative number of distinct branches executed
	// so far across all runs.
	Count() int
}

// PercentCoverage is an optional capability a CoverageCounter may also
// implement to report coverage as a percentage of some total the
// collaborator knows about (e.g. static branch count) for the exit-time
// report. Counters that cannot compute a meaningful total
// simply don't implement it; the driver reports zero in that case.
type PercentCoverage interface {
	Percent() float64
}

// Config collects the SYMEX_* environment-variable knobs.
type Config struct {
	// TimeBudget is SYMEX_TIMEBUDGET: overall wall-clock budget. Zero
	// means unbounded.
	TimeBudget time.Duration
	// ErrExit is SYMEX_ERREXIT: exit on first host error.
	ErrExit bool
	// MaxPktSeq is SYMEX_MAXPKTSEQ: upper bound on k. Zero means
	// unbounded.
	MaxPktSeq uint32
	// SolverTimeout is SYMEX_TIMEOUT: per-query solver wall-clock
	// bound.
	SolverTimeout time.Duration
	// TestCasePath is SYMEX_TESTCASE: when non-empty, bypass the driver
	// loop and replay this stored ConcreteStore exactly once.
	TestCasePath string
	// OutputDir is where error and path test cases are persisted.
	OutputDir string
}

// ErrStopped is returned by Run when SYMEX_ERREXIT caused the driver to
// stop after the first host error.
var ErrStopped = errors.New("driver: stopped after first host error")

// Report summarizes one driver invocation for the exit-time printout.
type Report struct {
	UniquePaths     int
	NegatedBranches int
	MaxPktSeqLen    uint32
	ErrorCount      int
	ErrorDir        string
	Elapsed         time.Duration
	BudgetExpired   bool
	SolverTime      time.Duration
	SolverQueries   int
	CoveragePercent float64
}

// Driver ties together a Simulator, a CoverageCounter, the shared Trace
// and ExecutionContext, and the persistence directory into the bounded
// exploration state machine.
type Driver struct {
	sim      Simulator
	coverage CoverageCounter
	tr       *trace.Trace
	ectx     *execctx.Context
	dir      *store.Dir
	cfg      Config
	rng      *rand.Rand
	log      *slog.Logger

	errorCount  int
	pathCount   int
	maxK        uint32
	partialRuns map[uint32][]execctx.Store
}

// New assembles a Driver. rng, if nil, defaults to a time-seeded source.
func New(sim Simulator, coverage CoverageCounter, tr *trace.Trace, ectx *execctx.Context, dir *store.Dir, cfg Config, rng *rand.Rand, log *slog.Logger) *Driver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		sim: sim, coverage: coverage, tr: tr, ectx: ectx, dir: dir, cfg: cfg,
		rng: rng, log: log, partialRuns: make(map[uint32][]execctx.Store),
	}
}

// Run executes the full driver loop (or, if cfg.TestCasePath is set, the
// single-shot replay mode) and returns the exit-time report.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	if d.cfg.TestCasePath != "" {
		if err := d.replay(ctx); err != nil {
			return d.report(start, false), err
		}
		return d.report(start, false), nil
	}

	budgetExpired := false
	for k := uint32(1); d.cfg.MaxPktSeq == 0 || k <= d.cfg.MaxPktSeq; k++ {
		if k > d.maxK {
			d.maxK = k
		}
		err := d.runLevel(ctx, k)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			budgetExpired = errors.Is(ctx.Err(), context.DeadlineExceeded)
			return d.report(start, budgetExpired), nil
		case errors.Is(err, ErrStopped):
			return d.report(start, false), nil
		default:
			return d.report(start, false), err
		}
	}

	return d.report(start, budgetExpired), nil
}

// replay installs the stored ConcreteStore at cfg.TestCasePath and runs
// the simulator exactly once, without touching the tree.
func (d *Driver) replay(ctx context.Context) error {
	s, err := store.Load(d.cfg.TestCasePath)
	if err != nil {
		return fmt.Errorf("driver: replay: %w", err)
	}
	d.ectx.SetupNewValues(s)
	d.sim.Reset(d.ectx, d.tr)
	d.tr.Reset()
	result, err := d.sim.Run(ctx, 0)
	if err != nil && !errors.Is(err, trace.ErrAssumptionAdded) {
		return fmt.Errorf("driver: replay: %w", err)
	}
	if result.HostError != nil {
		d.log.Warn("replay reproduced a host error", "error", result.HostError)
	}
	return nil
}

// runLevel enumerates new paths at packet-sequence bound k until the
// tree is exhausted or the run becomes stuck, then drains any partial
// runs recorded for k.
func (d *Driver) runLevel(ctx context.Context, k uint32) error {
	stuckCount := 0
	lastCoverage := d.coverage.Count()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := d.runOnce(ctx, k)
		if err != nil {
			if errors.Is(err, trace.ErrAssumptionAdded) {
				if err := d.reseedFromAssume(ctx); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if err := d.handleResult(k, result); err != nil {
			return err
		}

		lastCoverage, stuckCount = d.updateStuckness(lastCoverage, stuckCount)
		if stuckCount >= stuckThreshold {
			d.log.Info("stuck: advancing packet-sequence length", "k", k)
			break
		}

		ok, err := d.ectx.SetupNewValuesFromTrace(ctx, k, d.tr)
		if err != nil {
			if errors.Is(err, trace.ErrExhausted) {
				break
			}
			return err
		}
		if !ok {
			break
		}
	}

	return d.drainPartial(ctx, k)
}

func (d *Driver) updateStuckness(lastCoverage, stuckCount int) (int, int) {
	cov := d.coverage.Count()
	if cov > lastCoverage {
		return cov, 0
	}
	return lastCoverage, stuckCount + 1
}

// drainPartial replays recorded partial runs for k, in random order,
// until the set empties or a fresh stuck signal fires.
func (d *Driver) drainPartial(ctx context.Context, k uint32) error {
	pending := d.partialRuns[k]
	stuckCount := 0
	lastCoverage := d.coverage.Count()

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			d.partialRuns[k] = pending
			return err
		}

		idx := d.rng.Intn(len(pending))
		s := pending[idx]
		pending = append(pending[:idx:idx], pending[idx+1:]...)

		d.ectx.SetupNewValues(s)
		result, err := d.runOnce(ctx, k)
		if err != nil {
			if errors.Is(err, trace.ErrAssumptionAdded) {
				if err := d.reseedFromAssume(ctx); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if err := d.handleResult(k, result); err != nil {
			return err
		}

		lastCoverage, stuckCount = d.updateStuckness(lastCoverage, stuckCount)
		if stuckCount >= stuckThreshold {
			break
		}
	}

	d.partialRuns[k] = pending
	return nil
}

func (d *Driver) handleResult(k uint32, result RunResult) error {
	if result.HostError != nil {
		d.errorCount++
		path, err := d.dir.SaveError(d.errorCount, d.ectx.LastRun())
		if err != nil {
			return fmt.Errorf("driver: persisting error test case: %w", err)
		}
		d.log.Warn("host error", "error", result.HostError, "testcase", path)
		if d.cfg.ErrExit {
			return ErrStopped
		}
	}

	if result.EarlyExit {
		d.partialRuns[k] = append(d.partialRuns[k], d.ectx.LastRun())
		return nil
	}

	d.pathCount++
	if _, err := d.dir.SavePath(d.pathCount, d.ectx.LastRun()); err != nil {
		return fmt.Errorf("driver: persisting path test case: %w", err)
	}
	return nil
}

func (d *Driver) runOnce(ctx context.Context, k uint32) (RunResult, error) {
	d.tr.Reset()
	d.sim.Reset(d.ectx, d.tr)
	return d.sim.Run(ctx, k)
}

func (d *Driver) reseedFromAssume(ctx context.Context) error {
	assign, err := d.tr.FromAssume(ctx)
	if err != nil {
		return fmt.Errorf("driver: reseeding after assume: %w", err)
	}
	d.ectx.SetupNewValues(d.tr.GetStore(assign))
	return nil
}

func (d *Driver) report(start time.Time, budgetExpired bool) Report {
	stats := d.tr.Stats()
	solveTime, queries := d.tr.Solver().Stats()
	r := Report{
		UniquePaths:     stats.UniquePaths,
		NegatedBranches: stats.NegatedBranches,
		MaxPktSeqLen:    d.maxK,
		ErrorCount:      d.errorCount,
		Elapsed:         time.Since(start),
		BudgetExpired:   budgetExpired,
		SolverTime:      solveTime,
		SolverQueries:   queries,
	}
	if pc, ok := d.coverage.(PercentCoverage); ok {
		r.CoveragePercent = pc.Percent()
	}
	if d.errorCount > 0 {
		r.ErrorDir = d.dir.Root()
	}
	return r
}
